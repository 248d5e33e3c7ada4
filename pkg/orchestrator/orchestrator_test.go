package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
)

// fakeRunner scripts per-video outcomes and observes concurrency
type fakeRunner struct {
	mu          sync.Mutex
	calls       map[string]int
	failUntil   map[string]int // name -> succeed starting at this attempt
	delay       time.Duration
	running     int64
	maxObserved int64
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(map[string]int), failUntil: make(map[string]int)}
}

func (r *fakeRunner) Run(ctx context.Context, req models.JobRequest) models.JobResult {
	cur := atomic.AddInt64(&r.running, 1)
	for {
		prev := atomic.LoadInt64(&r.maxObserved)
		if cur <= prev || atomic.CompareAndSwapInt64(&r.maxObserved, prev, cur) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	defer atomic.AddInt64(&r.running, -1)

	r.mu.Lock()
	r.calls[req.OriginalName]++
	attempt := r.calls[req.OriginalName]
	succeedAt := r.failUntil[req.OriginalName]
	r.mu.Unlock()

	status := models.JobStatusSucceeded
	errMsg := ""
	if succeedAt > attempt {
		status = models.JobStatusFailed
		errMsg = "transient failure"
	}
	return models.JobResult{
		VideoName:   req.OriginalName,
		Status:      status,
		Error:       errMsg,
		CompletedAt: time.Now(),
	}
}

func (r *fakeRunner) attempts(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func writeVideos(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("video"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func testOrchestrator(t *testing.T, runner Runner, cfg config.OrchestratorConfig) *Orchestrator {
	t.Helper()
	return New(runner, cfg, logging.NewLogger(logging.ERROR, false))
}

func TestDiscoverFiltersVideoExtensions(t *testing.T) {
	dir := t.TempDir()
	writeVideos(t, dir, "a.mp4", "b.AVI", "c.mov", "notes.txt", "d.mkv")

	o := testOrchestrator(t, newFakeRunner(), config.OrchestratorConfig{InputDir: dir})
	videos, err := o.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 3 {
		t.Fatalf("expected 3 videos, got %v", videos)
	}
}

func TestProcessConcurrencyCapIsRespected(t *testing.T) {
	dir := t.TempDir()
	names := []string{"1.mp4", "2.mp4", "3.mp4", "4.mp4", "5.mp4", "6.mp4", "7.mp4", "8.mp4", "9.mp4", "10.mp4"}
	writeVideos(t, dir, names...)

	runner := newFakeRunner()
	runner.delay = 20 * time.Millisecond
	o := testOrchestrator(t, runner, config.OrchestratorConfig{
		InputDir:    dir,
		BatchSize:   10,
		Concurrency: 3,
		MaxRetries:  1,
	})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	if max := atomic.LoadInt64(&runner.maxObserved); max > 3 {
		t.Errorf("observed %d concurrent pipelines, cap is 3", max)
	}
}

func TestBatchRetryKeepsSuccessesAndRetriesFailures(t *testing.T) {
	dir := t.TempDir()
	writeVideos(t, dir, "1.mp4", "2.mp4", "3.mp4", "4.mp4")

	runner := newFakeRunner()
	runner.failUntil["3.mp4"] = 3 // fails attempts 1 and 2, succeeds on 3
	o := testOrchestrator(t, runner, config.OrchestratorConfig{
		InputDir:    dir,
		BatchSize:   4,
		Concurrency: 2,
		MaxRetries:  3,
	})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Status != models.JobStatusSucceeded {
			t.Errorf("%s ended %s, want succeeded", res.VideoName, res.Status)
		}
	}
	if got := runner.attempts("3.mp4"); got != 3 {
		t.Errorf("3.mp4 attempted %d times, want 3", got)
	}
	// Videos that succeeded on the first attempt are not re-run
	if got := runner.attempts("1.mp4"); got != 1 {
		t.Errorf("1.mp4 attempted %d times, want 1", got)
	}
}

func TestBatchRetryExhaustionRecordsPermanentFailure(t *testing.T) {
	dir := t.TempDir()
	writeVideos(t, dir, "good.mp4", "bad.mp4")

	runner := newFakeRunner()
	runner.failUntil["bad.mp4"] = 100
	o := testOrchestrator(t, runner, config.OrchestratorConfig{
		InputDir:    dir,
		BatchSize:   2,
		Concurrency: 2,
		MaxRetries:  3,
	})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	byName := make(map[string]models.JobResult)
	for _, res := range results {
		byName[res.VideoName] = res
	}
	if byName["bad.mp4"].Status != models.JobStatusFailed {
		t.Errorf("bad.mp4 ended %s, want failed", byName["bad.mp4"].Status)
	}
	if byName["good.mp4"].Status != models.JobStatusSucceeded {
		t.Errorf("good.mp4 ended %s, want succeeded", byName["good.mp4"].Status)
	}
	if got := runner.attempts("bad.mp4"); got != 3 {
		t.Errorf("bad.mp4 attempted %d times, want 3", got)
	}
}

func TestBatchesAreProcessedInOrder(t *testing.T) {
	dir := t.TempDir()
	writeVideos(t, dir, "a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4")

	var order []string
	var mu sync.Mutex
	runner := runnerFunc(func(ctx context.Context, req models.JobRequest) models.JobResult {
		mu.Lock()
		order = append(order, req.OriginalName)
		mu.Unlock()
		return models.JobResult{VideoName: req.OriginalName, Status: models.JobStatusSucceeded}
	})

	o := testOrchestrator(t, runner, config.OrchestratorConfig{
		InputDir:    dir,
		BatchSize:   2,
		Concurrency: 1,
		MaxRetries:  1,
	})

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// With C=1 each batch runs sequentially; batch boundaries preserve order
	want := []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("processing order %v, want %v", order, want)
		}
	}
}

func TestAggregateProgressAfterEachBatch(t *testing.T) {
	dir := t.TempDir()
	writeVideos(t, dir, "1.mp4", "2.mp4", "3.mp4", "4.mp4")

	o := testOrchestrator(t, newFakeRunner(), config.OrchestratorConfig{
		InputDir:    dir,
		BatchSize:   2,
		Concurrency: 2,
		MaxRetries:  1,
	})

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := o.Progress(); got != 100 {
		t.Errorf("final progress %v, want 100", got)
	}
}

func TestLastRunSummarizesThePass(t *testing.T) {
	dir := t.TempDir()
	writeVideos(t, dir, "1.mp4", "2.mp4", "3.mp4")

	runner := newFakeRunner()
	runner.failUntil["2.mp4"] = 100
	o := testOrchestrator(t, runner, config.OrchestratorConfig{
		InputDir:    dir,
		BatchSize:   2,
		Concurrency: 2,
		MaxRetries:  2,
	})

	before := time.Now()
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	run := o.LastRun()
	if len(run.Results) != 3 {
		t.Fatalf("expected 3 results in the run summary, got %d", len(run.Results))
	}
	if run.BatchSize != 2 || run.Concurrency != 2 || run.MaxRetries != 2 {
		t.Errorf("run parameters %d/%d/%d, want 2/2/2", run.BatchSize, run.Concurrency, run.MaxRetries)
	}
	if run.Progress != 100 {
		t.Errorf("run progress %v, want 100", run.Progress)
	}
	if run.StartedAt.Before(before) {
		t.Errorf("run start %v predates the call", run.StartedAt)
	}

	var failed int
	for _, res := range run.Results {
		if res.Status == models.JobStatusFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed result in the summary, got %d", failed)
	}
}

func TestEmptyDirectoryIsValidRun(t *testing.T) {
	o := testOrchestrator(t, newFakeRunner(), config.OrchestratorConfig{InputDir: t.TempDir()})
	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

// runnerFunc adapts a function to the Runner interface
type runnerFunc func(ctx context.Context, req models.JobRequest) models.JobResult

func (f runnerFunc) Run(ctx context.Context, req models.JobRequest) models.JobResult {
	return f(ctx, req)
}
