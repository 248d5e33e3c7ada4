package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/orchestrator"
	"github.com/lmejias/vidsift/pkg/pipeline"
)

var (
	ingestInputDir string
	ingestRubric   string
	ingestWatch    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Process every video in the input directory",
	Long: `Discovers video files in the input directory and runs each one through the
full pipeline: segmentation, per-segment analysis and knowledge-store
ingestion. Videos are processed in fixed-size batches under a concurrency
cap; failed videos are retried at the batch level.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestInputDir, "input", "", "input directory (overrides config)")
	ingestCmd.Flags().StringVar(&ingestRubric, "rubric", "", "custom analysis dimensions")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep watching the input directory for new videos")
}

// rubricRunner injects the run-level rubric into every job request
type rubricRunner struct {
	pipeline *pipeline.Pipeline
	rubric   string
}

func (r *rubricRunner) Run(ctx context.Context, req models.JobRequest) models.JobResult {
	req.Rubric = r.rubric
	return r.pipeline.Run(ctx, req)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ingestInputDir != "" {
		cfg.Orchestrator.InputDir = ingestInputDir
	}
	if cfg.Orchestrator.InputDir == "" {
		return fmt.Errorf("no input directory: set --input or orchestrator.input_dir")
	}

	logger, err := newLogger(cfg, "ingest")
	if err != nil {
		return err
	}
	defer logger.Close()

	jobStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	ctx := cmd.Context()
	p, err := buildPipeline(ctx, cfg, logger, jobStore)
	if err != nil {
		return err
	}

	runner := &rubricRunner{pipeline: p, rubric: ingestRubric}
	o := orchestrator.New(runner, cfg.Orchestrator, logger)

	if ingestWatch {
		return o.Watch(ctx)
	}

	results, err := o.Run(ctx)
	if err != nil {
		return err
	}

	var succeeded, failed, skipped int
	for _, res := range results {
		switch res.Status {
		case models.JobStatusSucceeded:
			succeeded++
		case models.JobStatusSkipped:
			skipped++
		default:
			failed++
			fmt.Printf("FAILED  %s: %s\n", res.VideoName, res.Error)
		}
	}
	run := o.LastRun()
	fmt.Printf("Processed %d videos in %s: %d succeeded, %d failed, %d skipped\n",
		len(results), time.Since(run.StartedAt).Round(time.Second), succeeded, failed, skipped)

	if failed > 0 {
		return fmt.Errorf("%d videos failed", failed)
	}
	return nil
}
