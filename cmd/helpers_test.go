package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// execute runs the root command with args and returns what it printed on
// stdout. Logs go to stderr, which is discarded. Flag values live on
// package-level commands, so they are put back to their defaults before
// every run and once more when the test ends.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetIn(bytes.NewBufferString(""))
	cmd.SetArgs(args)
	resetFlags(cmd)
	t.Cleanup(func() { resetFlags(cmd) })

	err := cmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// useTempStorage points the storage root and database at a fresh directory.
func useTempStorage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLIPCURATOR_STORAGE_ROOT", filepath.Join(dir, "pipeline_data"))
	t.Setenv("CLIPCURATOR_DATABASE_PATH", filepath.Join(dir, "videos.db"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
