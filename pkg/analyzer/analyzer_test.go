package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/retry"
)

type stubSampler struct {
	frames []string
	err    error
	calls  int
}

func (s *stubSampler) Sample(ctx context.Context, clipPath string, count int, destDir string) ([]string, error) {
	s.calls++
	return s.frames, s.err
}

type stubDescriber struct {
	failures int
	calls    int
	prompt   string
	text     string
	tokens   int
}

func (d *stubDescriber) Describe(ctx context.Context, prompt string, framePaths []string) (string, int, error) {
	d.calls++
	d.prompt = prompt
	if d.calls <= d.failures {
		return "", 0, errors.New("upstream 503")
	}
	return d.text, d.tokens, nil
}

func testAnalyzer(t *testing.T, sampler Sampler, client Describer) *SegmentAnalyzer {
	t.Helper()
	cfg := config.AnalyzerConfig{FramesPerSegment: 2}
	a := NewSegmentAnalyzer(sampler, client, cfg, t.TempDir(), logging.NewLogger(logging.ERROR, false))
	a.Retry = retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2.0}
	return a
}

func TestAnalyzeSuccess(t *testing.T) {
	sampler := &stubSampler{frames: []string{"f0.jpg", "f1.jpg"}}
	client := &stubDescriber{text: "a car passes a junction", tokens: 42}
	a := testAnalyzer(t, sampler, client)

	res := a.Analyze(context.Background(), "clip_1.mp4", "road trip", "", "")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Description != "a car passes a junction" {
		t.Errorf("unexpected description %q", res.Description)
	}
	if res.TokenUsage != 42 {
		t.Errorf("expected 42 tokens, got %d", res.TokenUsage)
	}
	if len(res.FramePaths) != 2 {
		t.Errorf("expected frame paths in result, got %v", res.FramePaths)
	}
}

func TestAnalyzeRecoveryWithinRetryBudget(t *testing.T) {
	sampler := &stubSampler{frames: []string{"f0.jpg"}}
	client := &stubDescriber{failures: 2, text: "recovered"}
	a := testAnalyzer(t, sampler, client)

	res := a.Analyze(context.Background(), "clip_1.mp4", "t", "", "")
	if !res.Success {
		t.Fatalf("expected success after retries, got %q", res.Error)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}

func TestAnalyzeExhaustedRetriesReturnsFailedResult(t *testing.T) {
	sampler := &stubSampler{frames: []string{"f0.jpg"}}
	client := &stubDescriber{failures: 10}
	a := testAnalyzer(t, sampler, client)

	res := a.Analyze(context.Background(), "clip_1.mp4", "t", "", "")
	if res.Success {
		t.Fatal("expected failed result")
	}
	if client.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", client.calls)
	}
	if !strings.Contains(res.Error, "3 attempts") {
		t.Errorf("error should mention the attempt budget, got %q", res.Error)
	}
	if len(res.FramePaths) != 1 {
		t.Errorf("failed result must still carry frame paths for cleanup, got %v", res.FramePaths)
	}
}

func TestAnalyzeReportsEachRetriedRequest(t *testing.T) {
	sampler := &stubSampler{frames: []string{"f0.jpg"}}
	client := &stubDescriber{failures: 2, text: "recovered"}
	a := testAnalyzer(t, sampler, client)

	retries := 0
	a.OnRetry = func() { retries++ }

	res := a.Analyze(context.Background(), "clip_1.mp4", "t", "", "")
	if !res.Success {
		t.Fatalf("expected success after retries, got %q", res.Error)
	}
	if retries != 2 {
		t.Errorf("expected 2 retried requests reported, got %d", retries)
	}

	client = &stubDescriber{text: "first try"}
	a = testAnalyzer(t, sampler, client)
	retries = 0
	a.OnRetry = func() { retries++ }

	a.Analyze(context.Background(), "clip_2.mp4", "t", "", "")
	if retries != 0 {
		t.Errorf("first-attempt success must not count as a retry, got %d", retries)
	}
}

func TestAnalyzeSamplingFailureSkipsDescription(t *testing.T) {
	sampler := &stubSampler{err: errors.New("unreadable clip")}
	client := &stubDescriber{text: "never"}
	a := testAnalyzer(t, sampler, client)

	res := a.Analyze(context.Background(), "clip_1.mp4", "t", "", "")
	if res.Success {
		t.Fatal("expected failed result")
	}
	if client.calls != 0 {
		t.Errorf("description service must not be called when sampling fails, got %d calls", client.calls)
	}
}

func TestAnalyzePromptCarriesContinuity(t *testing.T) {
	sampler := &stubSampler{frames: []string{"f0.jpg"}}
	client := &stubDescriber{text: "ok"}
	a := testAnalyzer(t, sampler, client)

	a.Analyze(context.Background(), "clip_2.mp4", "road trip", "a car enters the frame", "")
	if !strings.Contains(client.prompt, "a car enters the frame") {
		t.Error("prompt missing previous segment analysis")
	}
	if !strings.Contains(client.prompt, "road trip") {
		t.Error("prompt missing video title")
	}
}
