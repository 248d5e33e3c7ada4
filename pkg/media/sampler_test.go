package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lmejias/vidsift/pkg/logging"
)

func TestSampleIndicesSpanClip(t *testing.T) {
	cases := []struct {
		total, count int
		want         []int
	}{
		{total: 100, count: 2, want: []int{0, 99}},
		{total: 100, count: 1, want: []int{0}},
		{total: 101, count: 5, want: []int{0, 25, 50, 75, 100}},
		{total: 3, count: 3, want: []int{0, 1, 2}},
	}
	for _, tc := range cases {
		got := sampleIndices(tc.total, tc.count)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("sampleIndices(%d, %d) = %v, want %v", tc.total, tc.count, got, tc.want)
		}
	}
}

func TestSampleWritesRequestedFrames(t *testing.T) {
	tool := &stubTool{info: VideoInfo{FrameCount: 100, FPS: 25, Duration: 4}}
	sampler := NewFrameSampler(tool, logging.NewLogger(logging.ERROR, false))
	dir := t.TempDir()

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(clip, []byte("clip"), 0644); err != nil {
		t.Fatal(err)
	}

	frames, err := sampler.Sample(context.Background(), clip, 2, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !reflect.DeepEqual(tool.framesMade, []int{0, 99}) {
		t.Errorf("sampled frames %v, want [0 99]", tool.framesMade)
	}
	for _, f := range frames {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("frame artifact missing: %v", err)
		}
	}
}

func TestSampleUnreadableClipIsDecodeError(t *testing.T) {
	tool := &stubTool{probeErr: errors.New("moov atom not found")}
	sampler := NewFrameSampler(tool, logging.NewLogger(logging.ERROR, false))

	_, err := sampler.Sample(context.Background(), "broken.mp4", 2, t.TempDir())
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestSampleShortReadIsDecodeError(t *testing.T) {
	tool := &stubTool{
		info:     VideoInfo{FrameCount: 100, FPS: 25, Duration: 4},
		frameErr: errors.New("truncated"),
	}
	sampler := NewFrameSampler(tool, logging.NewLogger(logging.ERROR, false))

	frames, err := sampler.Sample(context.Background(), "clip.mp4", 3, t.TempDir())
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("expected no frames before first failure, got %d", len(frames))
	}
}

func TestSampleRejectsZeroCount(t *testing.T) {
	sampler := NewFrameSampler(&stubTool{}, logging.NewLogger(logging.ERROR, false))

	_, err := sampler.Sample(context.Background(), "clip.mp4", 0, t.TempDir())
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
