package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idreg/internal/store"
	"github.com/roach88/idreg/internal/testutil"
)

func TestDumpCommandEmpty(t *testing.T) {
	stdout, _, err := runCLI(t, "", "dump", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, stdout, "records: 0\ngeneration: 0\ndigest: ")
}

func TestDumpCommandRecords(t *testing.T) {
	db := tempDB(t)
	alice, bob := testutil.Account("alice"), testutil.Account("bob")

	_, _, err := runCLI(t, "", "invoke", "--db", db, "--caller", bob.String(), registerMessage("Bob"))
	require.NoError(t, err)
	_, _, err = runCLI(t, "", "invoke", "--db", db, "--caller", alice.String(), registerMessage("Alice"))
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "", "dump", "--db", db)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 5)
	// Records are listed in account order, not registration order.
	assert.Contains(t, lines[0], `"account":"`+alice.String()+`"`)
	assert.Contains(t, lines[0], `"seq":2`)
	assert.Contains(t, lines[1], `"account":"`+bob.String()+`"`)
	assert.Contains(t, lines[1], `"seq":1`)
	assert.Equal(t, "records: 2", lines[2])
	assert.Equal(t, "generation: 2", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "digest: "))
}

func TestDumpCommandJSON(t *testing.T) {
	db := tempDB(t)
	alice := testutil.Account("alice")

	_, _, err := runCLI(t, "", "invoke", "--db", db, "--caller", alice.String(), registerMessage("Alice"))
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "", "dump", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DumpOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Records, 1)
	assert.JSONEq(t, recordJSON(alice, "Alice", 1), string(resp.Data.Records[0]))
	assert.Equal(t, uint64(1), resp.Data.Generation)
	assert.Len(t, resp.Data.Digest, 64)
}

func TestDumpCommandDigestIgnoresQueries(t *testing.T) {
	db := tempDB(t)
	alice := testutil.Account("alice")

	_, _, err := runCLI(t, "", "invoke", "--db", db, "--caller", alice.String(), registerMessage("Alice"))
	require.NoError(t, err)
	before, _, err := runCLI(t, "", "dump", "--db", db)
	require.NoError(t, err)

	_, _, err = runCLI(t, "", "query", "--db", db, alice.String())
	require.NoError(t, err)
	_, _, err = runCLI(t, "", "invoke", "--db", db, "--caller", alice.String(), registerMessage("Alice"))
	require.Error(t, err)

	after, _, err := runCLI(t, "", "dump", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// seedLegacy writes schema v1 records straight into a SQLite file.
func seedLegacy(t *testing.T, path string, names ...string) {
	t.Helper()
	backend, err := store.OpenSQLite(path)
	require.NoError(t, err)
	defer backend.Close()

	var batch []store.Mutation
	for i, name := range names {
		account := testutil.Account(name)
		doc := fmt.Sprintf(`{"owner":%q,"attributes":{"name":%q},"created_at":%d,"updated_at":%d}`,
			account.String(), name, i+1, 7)
		batch = append(batch, store.Mutation{Key: "identity/" + account.String(), Value: []byte(doc)})
	}
	require.NoError(t, backend.Apply(context.Background(), batch))
}

func TestDumpCommandLegacyState(t *testing.T) {
	db := tempDB(t)
	seedLegacy(t, db, "alice")

	_, _, err := runCLI(t, "", "dump", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run 'idreg upgrade' first")
}

func TestUpgradeCommand(t *testing.T) {
	db := tempDB(t)
	seedLegacy(t, db, "alice", "bob")

	stdout, _, err := runCLI(t, "", "upgrade", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "upgraded state from version 1 to 2 (2 records migrated)\n", stdout)

	stdout, _, err = runCLI(t, "", "upgrade", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "state already at version 2\n", stdout)

	stdout, _, err = runCLI(t, "", "dump", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"attributes":{"name":"YWxpY2U="}`)
	assert.Contains(t, stdout, "records: 2")

	// The clock resumes after the migrated timestamps.
	stdout, _, err = runCLI(t, "", "invoke", "--db", db, "--caller", hexOf("alice"),
		`{"version":1,"action":"update","payload":{"attributes":{"name":"QQ=="}}}`)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"updated_at":8`)
}

func TestUpgradeCommandJSON(t *testing.T) {
	db := tempDB(t)
	seedLegacy(t, db, "alice")

	stdout, _, err := runCLI(t, "", "upgrade", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   store.UpgradeReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, store.UpgradeReport{From: 1, To: 2, Migrated: 1}, resp.Data)
}
