package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/testutil"
)

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// tempDB returns a SQLite path in a fresh temp dir.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "idreg.db")
}

func hexOf(name string) string {
	return testutil.Account(name).String()
}

func registerMessage(name string) string {
	return fmt.Sprintf(`{"version":1,"action":"register","payload":{"attributes":{"name":%q}}}`,
		base64.StdEncoding.EncodeToString([]byte(name)))
}

// recordJSON is the canonical value of a freshly registered single-attribute record.
func recordJSON(account ir.AccountID, name string, at int64) string {
	return fmt.Sprintf(`{"account":%q,"attributes":{"name":%q},"claims":[],"created_at":%d,"owner":%q,"seq":1,"updated_at":%d}`,
		account.String(), base64.StdEncoding.EncodeToString([]byte(name)), at, account.String(), at)
}
