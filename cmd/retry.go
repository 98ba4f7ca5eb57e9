package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tianzhicdev/dogetionary-sub008/internal/pipeline"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Resubmit videos whose upload failed",
	Long: `Resubmit every video in the failed-upload log using the verification
results cached by the run that produced it. Nothing is searched, scored
or transcribed again. Entries that upload successfully are removed from
the log.

Example:
  clipcurator retry`,
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Backend.BaseURL == "" {
		return apperrors.ConfigRequired("backend.base_url")
	}

	lock, err := pipeline.AcquireRunLock(cfg.Storage.Root)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	ingester := pipeline.NewIngester(newUploader(cfg, logger), store.state, cfg.Pipeline.IngestBatchSize, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := pipeline.RetryFailedUploads(ctx, store.cache, store.state, ingester, runID, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Retry %s\n", runID)
	fmt.Fprintf(out, "  attempted:     %d\n", report.Attempted)
	fmt.Fprintf(out, "  uploaded:      %d\n", report.Uploaded)
	fmt.Fprintf(out, "  failed:        %d\n", report.Failed)
	fmt.Fprintf(out, "  unrecoverable: %d\n", report.Unrecoverable)
	fmt.Fprintf(out, "  pruned:        %d\n", report.Pruned)
	return nil
}
