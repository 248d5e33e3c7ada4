package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/lock"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/media"
	"github.com/lmejias/vidsift/pkg/metrics"
	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/store"
)

type stubSegmenter struct {
	outputDir string
	count     int
	err       error
}

func (s *stubSegmenter) Segment(ctx context.Context, videoPath string) ([]models.Segment, error) {
	if s.err != nil {
		return nil, s.err
	}
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	dir := filepath.Join(s.outputDir, stem)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	segments := make([]models.Segment, 0, s.count)
	for i := 1; i <= s.count; i++ {
		clip := filepath.Join(dir, fmt.Sprintf("%s_segment_%d.mp4", stem, i))
		if err := os.WriteFile(clip, []byte("clip"), 0644); err != nil {
			return nil, err
		}
		segments = append(segments, models.Segment{
			Index: i, StartTime: float64(i - 1), EndTime: float64(i), Duration: 1, ClipPath: clip,
		})
	}
	return segments, nil
}

type analyzeCall struct {
	clipPath string
	prev     string
}

type stubAnalyzer struct {
	failAt map[int]bool // 1-based call number
	calls  []analyzeCall
}

func (a *stubAnalyzer) Analyze(ctx context.Context, clipPath, title, prevAnalysis, rubric string) models.AnalysisResult {
	a.calls = append(a.calls, analyzeCall{clipPath: clipPath, prev: prevAnalysis})
	n := len(a.calls)
	if a.failAt[n] {
		return models.AnalysisResult{Success: false, Error: "description service down"}
	}
	return models.AnalysisResult{
		Success:     true,
		Description: fmt.Sprintf("analysis of call %d", n),
		TokenUsage:  10,
	}
}

type stubObjects struct {
	err     error
	uploads []string
}

func (o *stubObjects) Upload(ctx context.Context, localPath, remoteKey string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.uploads = append(o.uploads, localPath)
	return "http://minio.local/clips/" + filepath.Base(localPath) + "?X-Amz-Signature=sig", nil
}

type ingestedEntry struct {
	datasetID string
	text      string
	clipPath  string
}

type stubIngestor struct {
	datasetErr error
	ingestErr  error
	datasets   []string
	entries    []ingestedEntry
}

func (k *stubIngestor) CreateDataset(ctx context.Context, name string) (string, error) {
	if k.datasetErr != nil {
		return "", k.datasetErr
	}
	k.datasets = append(k.datasets, name)
	return "ds-1", nil
}

func (k *stubIngestor) Ingest(ctx context.Context, datasetID, description, clipPath string) error {
	if k.ingestErr != nil {
		return k.ingestErr
	}
	k.entries = append(k.entries, ingestedEntry{datasetID: datasetID, text: description, clipPath: clipPath})
	return nil
}

type stubProber struct {
	info media.VideoInfo
	err  error
}

func (p *stubProber) Probe(ctx context.Context, path string) (media.VideoInfo, error) {
	return p.info, p.err
}

type testEnv struct {
	pipeline  *Pipeline
	segmenter *stubSegmenter
	analyzer  *stubAnalyzer
	objects   *stubObjects
	knowledge *stubIngestor
	store     *store.MemoryStore
	locker    lock.Locker
	cfg       config.SegmenterConfig
	inputDir  string
	progress  []int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.SegmenterConfig{
		Threshold:   27.0,
		MinDuration: 0.1,
		OutputDir:   filepath.Join(root, "segments"),
		ScratchDir:  filepath.Join(root, "scratch"),
		FinishedDir: filepath.Join(root, "finished"),
	}
	logger := logging.NewLogger(logging.ERROR, false)
	locker, err := lock.NewFileLocker(filepath.Join(root, "locks"), logger)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		segmenter: &stubSegmenter{outputDir: cfg.OutputDir, count: 2},
		analyzer:  &stubAnalyzer{},
		objects:   &stubObjects{},
		knowledge: &stubIngestor{},
		store:     store.NewMemoryStore(),
		locker:    locker,
		cfg:       cfg,
		inputDir:  filepath.Join(root, "input"),
	}
	if err := os.MkdirAll(env.inputDir, 0755); err != nil {
		t.Fatal(err)
	}

	env.pipeline = New(env.segmenter, env.analyzer, env.objects, env.knowledge,
		&stubProber{info: media.VideoInfo{FrameCount: 250, FPS: 25, Duration: 10}},
		locker, env.store, metrics.New(prometheus.NewRegistry()), cfg, logger)
	env.pipeline.OnProgress = func(progress int, step string) {
		env.progress = append(env.progress, progress)
	}
	return env
}

func (env *testEnv) writeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.inputDir, name)
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSuccessIngestsEverySegment(t *testing.T) {
	env := newTestEnv(t)
	src := env.writeVideo(t, "roadtrip.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.Segments != 2 {
		t.Errorf("expected 2 segments, got %d", res.Segments)
	}
	if len(env.knowledge.entries) != 2 {
		t.Fatalf("expected 2 ingested entries, got %d", len(env.knowledge.entries))
	}

	// Ingested text is description + canonical reference, query params gone
	for _, entry := range env.knowledge.entries {
		if !strings.Contains(entry.text, "\n\n") {
			t.Errorf("entry missing description/reference separator: %q", entry.text)
		}
		if strings.Contains(entry.text, "X-Amz-Signature") {
			t.Errorf("entry reference not canonicalized: %q", entry.text)
		}
	}

	// Segment 2's prompt receives segment 1's analysis
	if env.analyzer.calls[1].prev != "analysis of call 1" {
		t.Errorf("continuity not threaded, got prev %q", env.analyzer.calls[1].prev)
	}

	// Source relocated under its UUID name
	finished, err := os.ReadDir(env.cfg.FinishedDir)
	if err != nil || len(finished) != 1 {
		t.Fatalf("expected 1 finished file, got %v (%v)", finished, err)
	}
	if got := finished[0].Name(); got != res.JobID+".mp4" {
		t.Errorf("finished file named %q, want %q", got, res.JobID+".mp4")
	}
}

func TestRunProgressIsMonotonicAndEndsAt100(t *testing.T) {
	env := newTestEnv(t)
	src := env.writeVideo(t, "clip.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusSucceeded {
		t.Fatalf("expected success, got %s", res.Status)
	}

	prev := -1
	for _, p := range env.progress {
		if p < prev {
			t.Fatalf("progress regressed: %v", env.progress)
		}
		prev = p
	}
	if prev != 100 {
		t.Errorf("final progress %d, want 100", prev)
	}

	job, err := env.store.GetJob(res.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Progress != 100 {
		t.Errorf("stored progress %d, want 100", job.Progress)
	}
}

func TestRunZeroCutsPromotesWholeVideo(t *testing.T) {
	env := newTestEnv(t)
	env.segmenter.count = 0
	src := env.writeVideo(t, "short.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.Segments != 1 {
		t.Fatalf("expected 1 implicit segment, got %d", res.Segments)
	}
	if len(env.analyzer.calls) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(env.analyzer.calls))
	}
	// The implicit segment is the renamed source itself
	if base := filepath.Base(env.analyzer.calls[0].clipPath); base != res.JobID+".mp4" {
		t.Errorf("analyzed clip %q, want renamed source %q", base, res.JobID+".mp4")
	}
}

func TestRunFailedSegmentSkipsIngestAndResetsContinuity(t *testing.T) {
	env := newTestEnv(t)
	env.segmenter.count = 3
	env.analyzer.failAt = map[int]bool{2: true}
	src := env.writeVideo(t, "three.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusSucceeded {
		t.Fatalf("one bad segment must not fail the video, got %s (%s)", res.Status, res.Error)
	}
	if len(env.knowledge.entries) != 2 {
		t.Fatalf("expected 2 ingested entries, got %d", len(env.knowledge.entries))
	}
	if env.analyzer.calls[2].prev != "" {
		t.Errorf("continuity must reset after a failed segment, got prev %q", env.analyzer.calls[2].prev)
	}
}

func TestRunMissingSourceIsFatal(t *testing.T) {
	env := newTestEnv(t)

	res := env.pipeline.Run(context.Background(), models.JobRequest{
		SourcePath: filepath.Join(env.inputDir, "ghost.mp4"),
	})
	if res.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if len(env.knowledge.datasets) != 0 {
		t.Error("dataset must not be created for a missing source")
	}
}

func TestRunDatasetFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.knowledge.datasetErr = errors.New("knowledge store down")
	src := env.writeVideo(t, "v.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if len(env.analyzer.calls) != 0 {
		t.Error("no segment may be analyzed without a dataset")
	}
}

func TestRunLockContentionSkips(t *testing.T) {
	env := newTestEnv(t)
	src := env.writeVideo(t, "contended.mp4")

	held, err := env.locker.Acquire(context.Background(), lock.SanitizeKey("contended.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("a skipped video must stay untouched in the input directory")
	}
	if len(env.knowledge.datasets) != 0 {
		t.Error("a skipped video must not create a dataset")
	}
}

func TestRunSweepsScratchOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.knowledge.ingestErr = errors.New("insert rejected")
	src := env.writeVideo(t, "doomed.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}

	// Segment clips tagged with the job UUID are gone
	if _, err := os.Stat(filepath.Join(env.cfg.OutputDir, res.JobID)); !os.IsNotExist(err) {
		t.Errorf("segment directory survived the sweep: %v", err)
	}

	job, err := env.store.GetJob(res.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Progress >= 100 {
		t.Errorf("failed job must not reach progress 100, got %d", job.Progress)
	}
}

func TestRunCollisionRegrantsUUID(t *testing.T) {
	env := newTestEnv(t)
	src := env.writeVideo(t, "dup.mp4")

	reqID := "11111111-1111-1111-1111-111111111111"
	// Occupy the renamed target so the pipeline must regrant
	env.writeVideo(t, reqID+".mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{ID: reqID, SourcePath: src})
	if res.Status != models.JobStatusSucceeded {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.JobID == reqID {
		t.Error("expected a regranted job id on rename collision")
	}
}

func TestRunQueueRampStaysBelow90UntilLastSegment(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.Ramp = QueueRamp
	env.segmenter.count = 3
	src := env.writeVideo(t, "ramped.mp4")

	res := env.pipeline.Run(context.Background(), models.JobRequest{SourcePath: src})
	if res.Status != models.JobStatusSucceeded {
		t.Fatalf("expected success, got %s", res.Status)
	}

	// 30 + i/3*60 for i=1..3 gives 50, 70, 90; then 100 at success
	want := map[int]bool{50: false, 70: false, 90: false, 100: false}
	for _, p := range env.progress {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("progress checkpoint %d never reported: %v", p, env.progress)
		}
	}
}
