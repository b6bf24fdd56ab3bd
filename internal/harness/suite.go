package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	ScenarioPath string   `json:"scenario_path"`
	Name         string   `json:"name,omitempty"`
	Pass         bool     `json:"pass"`
	Errors       []string `json:"errors,omitempty"`

	// Trace is the formatted reply trace, nil if the scenario did not run.
	Trace []byte `json:"-"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// Fail marks scenario i failed with an extra error, keeping the counts
// consistent.
func (r *SuiteResult) Fail(i int, msg string) {
	sc := &r.Scenarios[i]
	if sc.Pass {
		sc.Pass = false
		r.Passed--
		r.Failed++
	}
	sc.Errors = append(sc.Errors, msg)
}

// ExpandPaths resolves scenario arguments: files are kept, directories
// contribute their *.yaml and *.yml files in lexical order.
func ExpandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("scenario path %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, err
			}
			found = append(found, matches...)
		}
		slices.Sort(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

// RunSuite loads and runs every scenario in paths.
func RunSuite(paths []string) *SuiteResult {
	result := &SuiteResult{Scenarios: make([]ScenarioResult, 0, len(paths))}

	for _, path := range paths {
		sc := runFile(path)
		result.Total++
		if sc.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sc)
	}
	return result
}

func runFile(path string) ScenarioResult {
	sc := ScenarioResult{ScenarioPath: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		sc.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sc
	}
	sc.Name = scenario.Name

	run, err := Run(scenario)
	if err != nil {
		sc.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return sc
	}

	sc.Pass = run.Pass
	sc.Errors = run.Errors
	sc.Trace = FormatTrace(scenario.Name, run.Trace)
	return sc
}
