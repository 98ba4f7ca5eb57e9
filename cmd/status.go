package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tianzhicdev/dogetionary-sub008/internal/pipeline"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress and recorded failures",
	Long: `Show how many words have been processed, how many videos have been
uploaded and every failure recorded under the storage root.

Example:
  clipcurator status
  clipcurator status --json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "print the raw state as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	state, err := pipeline.OpenFileStateStore(cfg.Storage.Root, logger)
	if err != nil {
		return err
	}
	snapshot := state.Snapshot()

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Storage root:     %s\n", cfg.Storage.Root)
	fmt.Fprintf(out, "Processed words:  %d\n", len(snapshot.ProcessedWords))
	fmt.Fprintf(out, "Uploaded videos:  %d\n", len(snapshot.UploadedVideos))
	fmt.Fprintf(out, "Failures:         %d\n", len(snapshot.Failures))

	if len(snapshot.Failures) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Failures")
	t.AppendHeader(table.Row{"Word", "Stage", "Clip", "Run", "When", "Error"})
	for _, f := range snapshot.Failures {
		t.AppendRow(table.Row{f.Word, f.Stage, f.ClipID, f.RunID, f.Timestamp.Format("2006-01-02 15:04:05"), truncate(f.Error, 60)})
	}
	t.Render()
	return nil
}
