package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tianzhicdev/dogetionary-sub008/internal/pipeline"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/cleanup"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the curation pipeline over a vocabulary file",
	Long: `Run every word of a vocabulary file through search, filtering,
audio verification and ingestion.

The vocabulary file has one word per line, optionally followed by a comma
and a language code. Words finished in an earlier run are skipped, so an
interrupted run can simply be started again. Interrupting with Ctrl-C lets
the word in progress finish before exiting.

Example:
  clipcurator run --words words.csv
  clipcurator run --words words.csv --workers 4 --language fr`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("words", "", "path to the vocabulary file")
	runCmd.Flags().String("language", "", "language for words without one (overrides config)")
	runCmd.Flags().Int("workers", 0, "words processed concurrently (overrides config)")
	runCmd.Flags().Bool("force", false, "ignore cached verification results")
	runCmd.Flags().String("run-id", "", "identifier recorded with uploads and failures")
	_ = runCmd.MarkFlagRequired("words")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	wordsPath, _ := cmd.Flags().GetString("words")
	language, _ := cmd.Flags().GetString("language")
	workers, _ := cmd.Flags().GetInt("workers")
	force, _ := cmd.Flags().GetBool("force")
	runID, _ := cmd.Flags().GetString("run-id")

	if language == "" {
		language = cfg.Pipeline.DefaultLanguage
	}
	if workers <= 0 {
		workers = cfg.Pipeline.Workers
	}

	words, err := pipeline.LoadVocabulary(wordsPath, language)
	if err != nil {
		return err
	}
	if err := requireCredentials(cfg); err != nil {
		return err
	}

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	wired, err := buildStages(cfg, store, stageOptions{force: force}, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := wired.uploader.Health(ctx); err != nil {
		return apperrors.ExternalServiceError("backend", err)
	}

	sweeper := cleanup.NewService(filepath.Join(store.root, "tmp"), nil, scratchMaxAge, scratchMaxAge/4, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	driver := pipeline.NewDriver(wired.stages, store.state, pipeline.DriverOptions{
		Workers:     workers,
		RunID:       runID,
		StorageRoot: store.root,
	}, logger)

	summary, err := driver.Run(ctx, words)
	if summary != nil {
		renderSummary(cmd.OutOrStdout(), summary)
		logClientMetrics(cmd.OutOrStdout(), wired.counters, logger)
	}
	if errors.Is(err, pipeline.ErrStopped) {
		fmt.Fprintln(cmd.OutOrStdout(), "Run interrupted; start it again to continue.")
		return nil
	}
	return err
}

// scratchMaxAge is how old a leftover download or audio track must be
// before the sweeper removes it.
const scratchMaxAge = time.Hour

func renderSummary(out io.Writer, summary *pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Run " + summary.RunID)
	t.AppendHeader(table.Row{"Word", "Lang", "State", "Candidates", "Accepted", "Verified", "Uploaded", "Mappings", "Error"})
	for _, r := range summary.Reports {
		state := string(r.State)
		if r.FailedStage != "" {
			state += " (" + string(r.FailedStage) + ")"
		}
		t.AppendRow(table.Row{r.Word, r.Language, state, r.Candidates, r.Accepted, r.Verified, r.VideosUploaded, r.MappingsCreated, truncate(r.Error, 60)})
	}
	t.AppendFooter(table.Row{
		"Total", "",
		fmt.Sprintf("%d done / %d skipped / %d failed", summary.Processed, summary.Skipped, summary.Failed),
		"", "", "", summary.VideosUploaded, summary.MappingsCreated,
		summary.Duration.Round(time.Second).String(),
	})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
