package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	b := writeScenario(t, dir, "b.yaml", "")
	a := writeScenario(t, dir, "a.yml", "")
	writeScenario(t, dir, "notes.txt", "")
	single := writeScenario(t, t.TempDir(), "single.yaml", "")

	paths, err := ExpandPaths([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{single, a, b}, paths)

	_, err = ExpandPaths([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "good.yaml", `
name: good
description: "unregistered query"
steps:
  - caller: alice
    action: query
    expect: { status: error, kind: NotFound }
`)
	bad := writeScenario(t, dir, "bad.yaml", `
name: bad
description: "wrong expectation"
steps:
  - caller: alice
    action: query
`)
	broken := writeScenario(t, dir, "broken.yaml", "name: [")

	result := RunSuite([]string{good, bad, broken})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.OK())

	require.Len(t, result.Scenarios, 3)
	assert.True(t, result.Scenarios[0].Pass)
	assert.Equal(t, "good", result.Scenarios[0].Name)
	assert.Contains(t, string(result.Scenarios[0].Trace), "# scenario: good\n")

	assert.False(t, result.Scenarios[1].Pass)
	assert.Contains(t, result.Scenarios[1].Errors[0], "expected ok, got error NotFound")

	assert.False(t, result.Scenarios[2].Pass)
	assert.Equal(t, broken, result.Scenarios[2].ScenarioPath)
	assert.Contains(t, result.Scenarios[2].Errors[0], "failed to load scenario")
	assert.Nil(t, result.Scenarios[2].Trace)
}

func TestSuiteResult_Fail(t *testing.T) {
	result := &SuiteResult{
		Total:     2,
		Passed:    1,
		Failed:    1,
		Scenarios: []ScenarioResult{{Pass: true}, {Pass: false, Errors: []string{"x"}}},
	}

	result.Fail(0, "golden mismatch")
	result.Fail(1, "golden mismatch")

	assert.Equal(t, 0, result.Passed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []string{"golden mismatch"}, result.Scenarios[0].Errors)
	assert.Equal(t, []string{"x", "golden mismatch"}, result.Scenarios[1].Errors)
}

func TestRunSuite_Testdata(t *testing.T) {
	paths, err := ExpandPaths([]string{filepath.Join("testdata", "scenarios")})
	require.NoError(t, err)

	result := RunSuite(paths)
	assert.True(t, result.OK(), "scenarios: %+v", result.Scenarios)
	assert.Equal(t, len(paths), result.Passed)
}
