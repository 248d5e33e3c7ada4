package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
)

// Segmenter splits a video into content-coherent clips at detected scene
// cuts. Candidates shorter than the configured minimum duration are
// discarded; surviving segments are renumbered contiguously starting at 1.
type Segmenter struct {
	tool   Tool
	cfg    config.SegmenterConfig
	logger *logging.Logger
}

// NewSegmenter creates a Segmenter
func NewSegmenter(tool Tool, cfg config.SegmenterConfig, logger *logging.Logger) *Segmenter {
	return &Segmenter{tool: tool, cfg: cfg, logger: logger}
}

// Segment detects scene cuts in videoPath and materializes each surviving
// range as an independent clip under the configured output directory.
// A video with zero surviving segments is a valid outcome and returns an
// empty slice; promoting the whole video to a single segment is the caller's
// responsibility. The source file is never deleted.
func (s *Segmenter) Segment(ctx context.Context, videoPath string) ([]models.Segment, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, &SegmentationError{Path: videoPath, Err: err}
	}

	info, err := s.tool.Probe(ctx, videoPath)
	if err != nil {
		return nil, &SegmentationError{Path: videoPath, Err: err}
	}

	s.logger.Debug("probed video", map[string]interface{}{
		"path":     videoPath,
		"frames":   info.FrameCount,
		"fps":      info.FPS,
		"duration": info.Duration,
	})

	cuts, err := s.tool.DetectCuts(ctx, videoPath, s.cfg.Threshold)
	if err != nil {
		return nil, &SegmentationError{Path: videoPath, Err: err}
	}
	s.logger.Info("scene detection complete", map[string]interface{}{
		"path":   videoPath,
		"scenes": len(cuts),
	})

	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outDir := filepath.Join(s.cfg.OutputDir, stem)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &SegmentationError{Path: videoPath, Err: err}
	}

	segments := make([]models.Segment, 0, len(cuts))
	for i, cut := range cuts {
		startTime := float64(cut.StartFrame) / info.FPS
		endTime := float64(cut.EndFrame) / info.FPS
		duration := endTime - startTime

		if duration < s.cfg.MinDuration {
			s.logger.Debug("discarding short segment candidate", map[string]interface{}{
				"scene":    i + 1,
				"duration": duration,
			})
			continue
		}

		index := len(segments) + 1
		clipPath := filepath.Join(outDir, fmt.Sprintf("%s_segment_%d.mp4", stem, index))

		if err := s.tool.ExtractRange(ctx, videoPath, startTime, duration, clipPath); err != nil {
			s.logger.Error("failed to materialize segment, skipping", map[string]interface{}{
				"scene": i + 1,
				"error": err.Error(),
			})
			continue
		}

		segments = append(segments, models.Segment{
			Index:      index,
			StartTime:  startTime,
			EndTime:    endTime,
			Duration:   duration,
			StartFrame: cut.StartFrame,
			EndFrame:   cut.EndFrame,
			ClipPath:   clipPath,
		})
	}

	s.logger.Info("segmentation complete", map[string]interface{}{
		"path":     videoPath,
		"segments": len(segments),
	})
	return segments, nil
}
