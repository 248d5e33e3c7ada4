package media

import (
	"context"
	"fmt"
)

// VideoInfo describes a video container's stream properties
type VideoInfo struct {
	FrameCount int
	FPS        float64
	Duration   float64 // seconds
}

// CutRange is a detected scene spanning [StartFrame, EndFrame)
type CutRange struct {
	StartFrame int
	EndFrame   int
}

// Tool abstracts the external segmentation/transcoding tool. The scene-cut
// detector is a black box returning cut points; its internal frame-difference
// math is out of scope.
type Tool interface {
	// Probe returns frame count, frame rate and duration of a video
	Probe(ctx context.Context, path string) (VideoInfo, error)
	// DetectCuts runs scene-cut detection. Higher threshold = less sensitive.
	DetectCuts(ctx context.Context, path string, threshold float64) ([]CutRange, error)
	// ExtractRange materializes [start, start+duration) seconds of src into dst
	ExtractRange(ctx context.Context, src string, start, duration float64, dst string) error
	// ExtractFrame writes the frame with the given index as an image file
	ExtractFrame(ctx context.Context, src string, frame int, dst string) error
}

// SegmentationError indicates an unreadable source or a cut-detector failure.
// It is fatal for the job that owns the video.
type SegmentationError struct {
	Path string
	Err  error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segmentation failed for %s: %v", e.Path, e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// DecodeError indicates a clip that cannot be opened or yields fewer readable
// frames than requested. Callers decide whether a short result is tolerable.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed for %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
