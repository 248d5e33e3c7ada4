package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lmejias/vidsift/pkg/logging"
)

// FrameSampler extracts frames uniformly spaced across a clip's duration.
// Sampling produces a finite sequence of frame artifacts; re-invocation
// re-decodes the clip.
type FrameSampler struct {
	tool   Tool
	logger *logging.Logger
}

// NewFrameSampler creates a FrameSampler
func NewFrameSampler(tool Tool, logger *logging.Logger) *FrameSampler {
	return &FrameSampler{tool: tool, logger: logger}
}

// Sample extracts count frames from clipPath into destDir, choosing frame
// indices by linear interpolation so the first and last sampled indices span
// the full clip. Returns the paths written so far plus a DecodeError if the
// clip cannot be opened or yields fewer readable frames than requested.
func (fs *FrameSampler) Sample(ctx context.Context, clipPath string, count int, destDir string) ([]string, error) {
	if count < 1 {
		return nil, &DecodeError{Path: clipPath, Err: fmt.Errorf("frame count must be at least 1, got %d", count)}
	}

	info, err := fs.tool.Probe(ctx, clipPath)
	if err != nil {
		return nil, &DecodeError{Path: clipPath, Err: err}
	}
	if info.FrameCount < 1 {
		return nil, &DecodeError{Path: clipPath, Err: fmt.Errorf("clip has no frames")}
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, &DecodeError{Path: clipPath, Err: err}
	}

	indices := sampleIndices(info.FrameCount, count)
	frames := make([]string, 0, count)
	for i, frameNo := range indices {
		framePath := filepath.Join(destDir, fmt.Sprintf("frame_%d.jpg", i))
		if err := fs.tool.ExtractFrame(ctx, clipPath, frameNo, framePath); err != nil {
			fs.logger.Error("frame extraction failed", map[string]interface{}{
				"clip":  clipPath,
				"frame": frameNo,
				"error": err.Error(),
			})
			return frames, &DecodeError{Path: clipPath, Err: fmt.Errorf("read %d of %d frames: %w", len(frames), count, err)}
		}
		frames = append(frames, framePath)
	}

	return frames, nil
}

// sampleIndices spreads count indices linearly over [0, total-1] inclusive
func sampleIndices(total, count int) []int {
	indices := make([]int, count)
	if count == 1 {
		return indices
	}
	step := float64(total-1) / float64(count-1)
	for i := range indices {
		indices[i] = int(float64(i)*step + 0.5)
	}
	return indices
}
