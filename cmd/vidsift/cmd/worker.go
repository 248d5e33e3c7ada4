package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/pipeline"
	"github.com/lmejias/vidsift/pkg/queue"
	"github.com/lmejias/vidsift/pkg/shutdown"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued videos",
	Long: `Claims jobs from the Redis task queue and runs each through the pipeline,
publishing pollable status as the job advances. One worker handles one job
at a time; run more worker processes for parallelism. The per-video lock
keeps two workers off the same file.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "worker")
	if err != nil {
		return err
	}
	defer logger.Close()

	jobStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sd := shutdown.New(30 * time.Second)
	sd.Register(func(context.Context) error {
		cancel()
		return nil
	})
	go func() {
		if err := sd.WaitWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown wait failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	p, err := buildPipeline(ctx, cfg, logger, jobStore)
	if err != nil {
		return err
	}
	p.Ramp = pipeline.QueueRamp

	logger.Info("worker started", map[string]interface{}{"queue": cfg.Queue.Key})

	for {
		req, err := q.Claim(ctx, 5*time.Second)
		if errors.Is(err, queue.ErrNoJob) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker stopping", nil)
				return nil
			}
			logger.Error("claim failed", map[string]interface{}{"error": err.Error()})
			time.Sleep(time.Second)
			continue
		}

		processJob(ctx, p, q, req, logger.WithField("job", req.ID))
	}
}

// processJob runs one claimed job and publishes its status transitions
func processJob(ctx context.Context, p *pipeline.Pipeline, q *queue.Queue, req models.JobRequest, logger *logging.Logger) {
	logger.Info("job claimed", map[string]interface{}{"video": req.OriginalName})

	setStatus := func(s queue.Status) {
		if err := q.SetStatus(ctx, req.ID, s); err != nil {
			logger.Error("failed to publish status", map[string]interface{}{"error": err.Error()})
		}
	}

	setStatus(queue.Status{State: models.JobStatusRunning, Progress: 10, Step: "starting"})

	p.OnProgress = func(progress int, step string) {
		setStatus(queue.Status{State: models.JobStatusRunning, Progress: progress, Step: step})
	}
	result := p.Run(ctx, req)
	p.OnProgress = nil

	final := queue.Status{
		State:  result.Status,
		Error:  result.Error,
		Result: &result,
	}
	if result.Status == models.JobStatusSucceeded {
		final.Progress = 100
	} else if last, err := q.GetStatus(ctx, req.ID); err == nil {
		// keep the last published progress, it must not regress
		final.Progress = last.Progress
	}
	setStatus(final)

	logger.Info("job finished", map[string]interface{}{
		"video":  req.OriginalName,
		"status": string(result.Status),
	})
	if result.Status == models.JobStatusFailed {
		fmt.Printf("job %s failed: %s\n", req.ID, result.Error)
	}
}
