package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tianzhicdev/dogetionary-sub008/internal/pipeline"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear checkpoints, upload records, failures or cached stages",
	Long: `Clear parts of the state kept under the storage root so the next run
repeats work it would otherwise skip.

Example:
  clipcurator reset --processed
  clipcurator reset --failures --yes
  clipcurator reset --cache final_analysis`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Bool("processed", false, "forget which words were processed")
	resetCmd.Flags().Bool("uploads", false, "forget which videos were uploaded")
	resetCmd.Flags().Bool("failures", false, "clear the failure log")
	resetCmd.Flags().StringSlice("cache", nil, "cached stages to delete (metadata, candidates, audio_transcripts, final_analysis)")
	resetCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
}

var cacheStages = map[string]pipeline.Stage{
	string(pipeline.StageMetadata):         pipeline.StageMetadata,
	string(pipeline.StageCandidates):       pipeline.StageCandidates,
	string(pipeline.StageAudioTranscripts): pipeline.StageAudioTranscripts,
	string(pipeline.StageFinalAnalysis):    pipeline.StageFinalAnalysis,
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	processed, _ := cmd.Flags().GetBool("processed")
	uploads, _ := cmd.Flags().GetBool("uploads")
	failures, _ := cmd.Flags().GetBool("failures")
	stageNames, _ := cmd.Flags().GetStringSlice("cache")
	yes, _ := cmd.Flags().GetBool("yes")

	var stages []pipeline.Stage
	for _, name := range stageNames {
		stage, ok := cacheStages[name]
		if !ok {
			return apperrors.ValidationError("cache", fmt.Sprintf("unknown stage %q", name))
		}
		stages = append(stages, stage)
	}
	if !processed && !uploads && !failures && len(stages) == 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "nothing to reset: pass --processed, --uploads, --failures or --cache")
	}

	out := cmd.OutOrStdout()
	if !yes && !confirm(cmd, fmt.Sprintf("This will reset state under %s. Continue? (y/N): ", cfg.Storage.Root)) {
		fmt.Fprintln(out, "Reset cancelled")
		return nil
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

	if processed {
		if err := store.state.ResetProcessed(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cleared processed words")
	}
	if uploads {
		if err := store.state.ResetUploads(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cleared uploaded videos")
	}
	if failures {
		if err := store.state.ReplaceFailures(nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cleared failure log")
	}
	for _, stage := range stages {
		if err := store.cache.Clear(context.Background(), stage); err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %s cache\n", stage)
	}
	return nil
}
