package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lmejias/vidsift/pkg/analyzer"
	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/knowledge"
	"github.com/lmejias/vidsift/pkg/lock"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/media"
	"github.com/lmejias/vidsift/pkg/metrics"
	"github.com/lmejias/vidsift/pkg/objectstore"
	"github.com/lmejias/vidsift/pkg/pipeline"
	"github.com/lmejias/vidsift/pkg/store"
)

// buildPipeline wires the full per-video pipeline from config
func buildPipeline(ctx context.Context, cfg *config.Config, logger *logging.Logger, jobStore store.Store) (*pipeline.Pipeline, error) {
	tool := media.NewFFmpegTool(cfg.Segmenter.FFmpegPath, cfg.Segmenter.FFprobePath, logger)
	segmenter := media.NewSegmenter(tool, cfg.Segmenter, logger)
	sampler := media.NewFrameSampler(tool, logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	client := analyzer.NewDescriptionClient(cfg.Analyzer, logger)
	segAnalyzer := analyzer.NewSegmentAnalyzer(sampler, client, cfg.Analyzer, cfg.Segmenter.ScratchDir, logger)
	segAnalyzer.OnRetry = m.AnalysisRetried

	objects, err := objectstore.NewMinioStore(ctx, cfg.ObjectStore, logger)
	if err != nil {
		return nil, fmt.Errorf("object store setup failed: %w", err)
	}

	kb := knowledge.NewClient(cfg.Knowledge, logger)

	locker, err := lock.New(cfg.Lock, logger)
	if err != nil {
		return nil, fmt.Errorf("lock backend setup failed: %w", err)
	}

	return pipeline.New(segmenter, segAnalyzer, objects, kb, tool, locker, jobStore, m, cfg.Segmenter, logger), nil
}

// openStore opens the configured job-history store
func openStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("job store setup failed: %w", err)
	}
	return s, nil
}
