package orchestrator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/semaphore"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
)

// videoExtensions lists the container formats the orchestrator picks up
var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
}

// Runner processes one video end to end
type Runner interface {
	Run(ctx context.Context, req models.JobRequest) models.JobResult
}

// Orchestrator drives many per-video pipelines: discovery, fixed-size
// batches processed strictly in order, a concurrency cap within each batch,
// and batch-level retry that keeps per-video successes.
type Orchestrator struct {
	runner Runner
	cfg    config.OrchestratorConfig
	logger *logging.Logger

	mu       sync.Mutex
	progress float64
	lastRun  models.BatchRun
}

// New creates an Orchestrator
func New(runner Runner, cfg config.OrchestratorConfig, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{runner: runner, cfg: cfg, logger: logger}
}

// Discover lists the video files in the input directory, sorted by name
func (o *Orchestrator) Discover() ([]string, error) {
	entries, err := os.ReadDir(o.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			videos = append(videos, filepath.Join(o.cfg.InputDir, entry.Name()))
		}
	}
	sort.Strings(videos)
	return videos, nil
}

// Run discovers videos and processes them all, returning one result per
// video. An empty input directory is a valid no-op run.
func (o *Orchestrator) Run(ctx context.Context) ([]models.JobResult, error) {
	videos, err := o.Discover()
	if err != nil {
		return nil, err
	}
	return o.Process(ctx, videos)
}

// Process runs the given videos through consecutive batches
func (o *Orchestrator) Process(ctx context.Context, videos []string) ([]models.JobResult, error) {
	batchSize := o.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	maxRetries := o.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	run := models.BatchRun{
		BatchSize:   batchSize,
		Concurrency: o.concurrency(),
		MaxRetries:  maxRetries,
		StartedAt:   time.Now(),
	}

	total := len(videos)
	if total == 0 {
		o.setProgress(100)
		run.Progress = 100
		o.recordRun(run)
		return nil, nil
	}

	o.setProgress(0)
	results := make([]models.JobResult, 0, total)

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := videos[start:end]

		o.logger.Info("processing batch", map[string]interface{}{
			"from":  start + 1,
			"to":    end,
			"total": total,
		})

		batchResults := o.processBatchWithRetry(ctx, batch)
		results = append(results, batchResults...)

		o.setProgress(float64(len(results)) / float64(total) * 100)
	}

	run.Results = results
	run.Progress = o.Progress()
	o.recordRun(run)

	var succeeded int
	for _, res := range results {
		if res.Status == models.JobStatusSucceeded {
			succeeded++
		}
	}
	o.logger.Info("batch run complete", map[string]interface{}{
		"total":     total,
		"succeeded": succeeded,
		"elapsed":   time.Since(run.StartedAt).String(),
	})

	return results, nil
}

// processBatchWithRetry runs one batch, re-running only the still-failing
// subset up to MaxRetries attempts. Results of videos that already
// succeeded (or were skipped) are kept.
func (o *Orchestrator) processBatchWithRetry(ctx context.Context, batch []string) []models.JobResult {
	maxRetries := o.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	final := make(map[string]models.JobResult, len(batch))
	pending := batch

	for attempt := 1; attempt <= maxRetries && len(pending) > 0; attempt++ {
		if attempt > 1 {
			o.logger.Warn("retrying failed videos", map[string]interface{}{
				"attempt": attempt,
				"count":   len(pending),
			})
		}

		results := o.processConcurrently(ctx, pending)

		var stillFailing []string
		for i, res := range results {
			path := pending[i]
			final[path] = res
			if res.Status == models.JobStatusFailed {
				stillFailing = append(stillFailing, path)
			}
		}
		pending = stillFailing
	}

	for _, path := range pending {
		o.logger.Error("video permanently failed", map[string]interface{}{
			"video":    filepath.Base(path),
			"attempts": maxRetries,
			"error":    final[path].Error,
		})
	}

	ordered := make([]models.JobResult, 0, len(batch))
	for _, path := range batch {
		ordered = append(ordered, final[path])
	}
	return ordered
}

// processConcurrently runs the given videos under the concurrency cap
func (o *Orchestrator) processConcurrently(ctx context.Context, videos []string) []models.JobResult {
	sem := semaphore.NewWeighted(int64(o.concurrency()))
	results := make([]models.JobResult, len(videos))

	var wg sync.WaitGroup
	for i, path := range videos {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = models.JobResult{
				VideoName:   filepath.Base(path),
				Status:      models.JobStatusFailed,
				Error:       fmt.Sprintf("cancelled before start: %v", err),
				CompletedAt: time.Now(),
			}
			continue
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.runner.Run(ctx, models.JobRequest{
				SourcePath:   path,
				OriginalName: filepath.Base(path),
			})
		}(i, path)
	}
	wg.Wait()

	return results
}

// concurrency resolves the effective cap, deriving it from the CPU count
// when unset, and never exceeding the batch size.
func (o *Orchestrator) concurrency() int {
	c := o.cfg.Concurrency
	if c == 0 {
		n, err := cpu.Counts(true)
		if err != nil || n < 1 {
			n = 4
		}
		c = n
	}
	if o.cfg.BatchSize > 0 && c > o.cfg.BatchSize {
		c = o.cfg.BatchSize
	}
	if c < 1 {
		c = 1
	}
	return c
}

// Progress reports the aggregate completion percentage of the current run
func (o *Orchestrator) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// LastRun returns the summary of the most recent Process pass
func (o *Orchestrator) LastRun() models.BatchRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

func (o *Orchestrator) recordRun(run models.BatchRun) {
	o.mu.Lock()
	o.lastRun = run
	o.mu.Unlock()
}

func (o *Orchestrator) setProgress(p float64) {
	o.mu.Lock()
	o.progress = math.Round(p*10) / 10
	o.mu.Unlock()
}

// Watch polls the input directory on the configured interval and processes
// files it has not seen before. It returns when the context is cancelled.
func (o *Orchestrator) Watch(ctx context.Context) error {
	interval := o.cfg.WatchInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	seen := make(map[string]bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info("watching input directory", map[string]interface{}{
		"dir":      o.cfg.InputDir,
		"interval": interval.String(),
	})

	for {
		videos, err := o.Discover()
		if err != nil {
			o.logger.Error("discovery failed", map[string]interface{}{"error": err.Error()})
		} else {
			var fresh []string
			for _, v := range videos {
				if !seen[v] {
					seen[v] = true
					fresh = append(fresh, v)
				}
			}
			if len(fresh) > 0 {
				if _, err := o.Process(ctx, fresh); err != nil {
					o.logger.Error("batch processing failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
