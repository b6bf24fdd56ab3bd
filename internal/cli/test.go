package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/idreg/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario|dir>...",
		Short: "Run scenario files against a fresh registry",
		Long: `Run YAML scenarios, each against an empty in-memory registry with a
deterministic clock, and check their expectations and assertions.

When <scenario dir>/golden/<name>.golden exists, the reply trace must
match it byte for byte. --update rewrites the golden files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  idreg test ./scenarios
  idreg test ./scenarios --filter "transfer*"
  idreg test ./scenarios --update
  idreg test ./scenarios/claims.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runTests(opts *TestOptions, args []string, cmd *cobra.Command) error {
	paths, err := harness.ExpandPaths(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if paths, err = filterPaths(paths, opts.Filter); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	result := harness.RunSuite(paths)
	for i := range result.Scenarios {
		checkGolden(result, i, opts.Update)
	}

	f := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if f.Format == "json" {
		write := func() error { return f.Success(result) }
		if !result.OK() {
			write = func() error { return f.Error(ErrCodeScenarios, "scenarios failed", result) }
		}
		if err := write(); err != nil {
			return WrapExitError(ExitCommandError, "failed to write results", err)
		}
	} else {
		writeSuiteText(f.Writer, result, opts.Update)
	}

	if !result.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// filterPaths keeps paths whose base name, without extension, matches pattern.
func filterPaths(paths []string, pattern string) ([]string, error) {
	if pattern == "" {
		return paths, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		base := filepath.Base(p)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if ok, _ := filepath.Match(pattern, name); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// checkGolden compares or rewrites the golden file of scenario i.
// Scenarios without a golden file are judged on assertions alone.
func checkGolden(result *harness.SuiteResult, i int, update bool) {
	sc := result.Scenarios[i]
	if sc.Trace == nil {
		return
	}
	path := goldenFilePath(sc.ScenarioPath)

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			result.Fail(i, fmt.Sprintf("failed to create golden directory: %v", err))
			return
		}
		if err := os.WriteFile(path, sc.Trace, 0o644); err != nil {
			result.Fail(i, fmt.Sprintf("failed to write golden file: %v", err))
		}
		return
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		result.Fail(i, fmt.Sprintf("failed to read golden file: %v", err))
		return
	}
	if !bytes.Equal(want, sc.Trace) {
		result.Fail(i, "trace does not match golden file (run with --update to regenerate)")
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeSuiteText(w io.Writer, result *harness.SuiteResult, updated bool) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sc := range result.Scenarios {
		name := sc.Name
		if name == "" {
			name = filepath.Base(sc.ScenarioPath)
		}
		if sc.Pass {
			suffix := ""
			if updated {
				suffix = " (golden updated)"
			}
			fmt.Fprintf(w, "\u2713 %s%s\n", name, suffix)
			continue
		}
		fmt.Fprintf(w, "\u2717 %s\n", name)
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
