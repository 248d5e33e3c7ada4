package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/retry"
)

// Sampler extracts a fixed number of frames from a clip into a directory
type Sampler interface {
	Sample(ctx context.Context, clipPath string, count int, destDir string) ([]string, error)
}

// Describer produces a text description for a prompt plus frame images
type Describer interface {
	Describe(ctx context.Context, prompt string, framePaths []string) (string, int, error)
}

// SegmentAnalyzer turns one segment clip into an analysis result. Failures
// are reported in the result rather than returned as errors so a bad segment
// never aborts the rest of the video.
type SegmentAnalyzer struct {
	sampler    Sampler
	client     Describer
	cfg        config.AnalyzerConfig
	scratchDir string
	logger     *logging.Logger

	// Retry controls description retries. Exposed so tests can shrink backoff.
	Retry retry.Config

	// OnRetry, when set, is called for each repeated description request
	OnRetry func()
}

// NewSegmentAnalyzer creates a SegmentAnalyzer
func NewSegmentAnalyzer(sampler Sampler, client Describer, cfg config.AnalyzerConfig, scratchDir string, logger *logging.Logger) *SegmentAnalyzer {
	return &SegmentAnalyzer{
		sampler:    sampler,
		client:     client,
		cfg:        cfg,
		scratchDir: scratchDir,
		Retry:      retry.DefaultConfig(),
		logger:     logger,
	}
}

// Analyze samples frames from the clip and requests a description, retrying
// transient description failures. The returned result always carries the
// sampled frame paths so the caller can clean them up.
func (a *SegmentAnalyzer) Analyze(ctx context.Context, clipPath, title, prevAnalysis, rubric string) models.AnalysisResult {
	count := a.cfg.FramesPerSegment
	if count < 1 {
		count = 2
	}

	stem := strings.TrimSuffix(filepath.Base(clipPath), filepath.Ext(clipPath))
	frameDir := filepath.Join(a.scratchDir, stem)

	frames, err := a.sampler.Sample(ctx, clipPath, count, frameDir)
	if err != nil {
		a.logger.Error("frame sampling failed", map[string]interface{}{
			"clip":  clipPath,
			"error": err.Error(),
		})
		return models.AnalysisResult{
			Success:    false,
			Error:      fmt.Sprintf("frame sampling failed: %v", err),
			FramePaths: frames,
		}
	}

	prompt := BuildPrompt(title, prevAnalysis, rubric)

	var description string
	var tokens int
	attempt := 0
	err = retry.Do(ctx, a.Retry, func() error {
		attempt++
		if attempt > 1 && a.OnRetry != nil {
			a.OnRetry()
		}
		var derr error
		description, tokens, derr = a.client.Describe(ctx, prompt, frames)
		if derr != nil {
			a.logger.Warn("description attempt failed", map[string]interface{}{
				"clip":  clipPath,
				"error": derr.Error(),
			})
		}
		return derr
	})
	if err != nil {
		return models.AnalysisResult{
			Success:    false,
			Error:      fmt.Sprintf("description failed after %d attempts: %v", a.Retry.MaxAttempts, err),
			FramePaths: frames,
		}
	}

	a.logger.Info("segment analyzed", map[string]interface{}{
		"clip":   clipPath,
		"tokens": tokens,
	})

	return models.AnalysisResult{
		Success:     true,
		Description: description,
		TokenUsage:  tokens,
		FramePaths:  frames,
	}
}
