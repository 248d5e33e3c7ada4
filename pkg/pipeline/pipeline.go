package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/lock"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/media"
	"github.com/lmejias/vidsift/pkg/metrics"
	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/objectstore"
	"github.com/lmejias/vidsift/pkg/store"
)

// Segmenter cuts a video into ordered clips
type Segmenter interface {
	Segment(ctx context.Context, videoPath string) ([]models.Segment, error)
}

// Analyzer describes one segment clip
type Analyzer interface {
	Analyze(ctx context.Context, clipPath, title, prevAnalysis, rubric string) models.AnalysisResult
}

// Ingestor is the knowledge-store surface the pipeline needs
type Ingestor interface {
	CreateDataset(ctx context.Context, name string) (string, error)
	Ingest(ctx context.Context, datasetID, description, clipPath string) error
}

// Prober reads container metadata, used for the zero-segment fallback
type Prober interface {
	Probe(ctx context.Context, path string) (media.VideoInfo, error)
}

// Ramp maps segment-loop completion onto a progress range
type Ramp struct {
	Base int
	Span int
}

var (
	// DirectRamp is used when the pipeline is driven in-process
	DirectRamp = Ramp{Base: 50, Span: 50}

	// QueueRamp is used by queue workers, which report finer-grained
	// checkpoints below 30 before the loop starts.
	QueueRamp = Ramp{Base: 30, Span: 60}
)

// Pipeline runs one video end to end: rename, dataset creation,
// segmentation, the sequential segment loop, relocation and cleanup.
// A Pipeline is stateless between runs and safe to reuse.
type Pipeline struct {
	segmenter Segmenter
	analyzer  Analyzer
	objects   objectstore.ObjectStore
	knowledge Ingestor
	prober    Prober
	locker    lock.Locker
	store     store.Store
	metrics   *metrics.Metrics
	cleaner   *Cleaner
	cfg       config.SegmenterConfig
	logger    *logging.Logger

	// Ramp selects the progress range covered by the segment loop
	Ramp Ramp

	// OnProgress, when set, observes every progress update
	OnProgress func(progress int, step string)
}

// New creates a Pipeline
func New(segmenter Segmenter, analyzer Analyzer, objects objectstore.ObjectStore,
	knowledge Ingestor, prober Prober, locker lock.Locker, jobStore store.Store,
	m *metrics.Metrics, cfg config.SegmenterConfig, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		segmenter: segmenter,
		analyzer:  analyzer,
		objects:   objects,
		knowledge: knowledge,
		prober:    prober,
		locker:    locker,
		store:     jobStore,
		metrics:   m,
		cleaner:   NewCleaner(cfg.OutputDir, cfg.ScratchDir, logger),
		cfg:       cfg,
		logger:    logger,
		Ramp:      DirectRamp,
	}
}

// Run processes one video and reports the outcome. A failed video never
// panics the caller; every exit path releases the lock and sweeps scratch
// artifacts tagged with the job's UUID.
func (p *Pipeline) Run(ctx context.Context, req models.JobRequest) models.JobResult {
	name := req.OriginalName
	if name == "" {
		name = filepath.Base(req.SourcePath)
	}

	held, err := p.locker.Acquire(ctx, lock.SanitizeKey(name))
	if errors.Is(err, lock.ErrLockHeld) {
		p.logger.Info("video held by another worker, skipping", map[string]interface{}{
			"video": name,
		})
		return p.finishWithoutJob(req, name, models.JobStatusSkipped, "")
	}
	if err != nil {
		return p.finishWithoutJob(req, name, models.JobStatusFailed, fmt.Sprintf("lock acquisition failed: %v", err))
	}
	defer held.Release()

	jobID := req.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	now := time.Now()
	job := &models.VideoJob{
		ID:         jobID,
		SourcePath: req.SourcePath,
		Name:       name,
		DatasetID:  req.DatasetID,
		Status:     models.JobStatusRunning,
		CreatedAt:  now,
		StartedAt:  &now,
	}

	// Rename first: a collision regrants the job UUID, and the store must
	// only ever see the final id.
	renamedPath, err := p.renameSource(job)
	if err != nil {
		return p.finishWithoutJob(req, name, models.JobStatusFailed, fmt.Sprintf("source rename failed: %v", err))
	}

	if err := p.store.UpsertJob(job); err != nil {
		p.logger.Warn("failed to record job", map[string]interface{}{
			"job":   job.ID,
			"error": err.Error(),
		})
	}

	p.metrics.PipelineStarted()
	defer p.metrics.PipelineFinished()
	defer p.cleaner.Sweep(job.ID)

	result := p.run(ctx, job, renamedPath, req.Rubric)

	// Put a failed video back under its original name so a batch retry can
	// discover and pick it up again.
	if result.Status == models.JobStatusFailed {
		if rerr := os.Rename(renamedPath, job.SourcePath); rerr != nil && !os.IsNotExist(rerr) {
			p.logger.Warn("failed to restore source name", map[string]interface{}{
				"job":   job.ID,
				"error": rerr.Error(),
			})
		}
	}

	if err := p.store.UpdateJobStatus(job.ID, result.Status, result.Error); err != nil {
		p.logger.Warn("failed to record job outcome", map[string]interface{}{
			"job":   job.ID,
			"error": err.Error(),
		})
	}
	p.metrics.VideoProcessed(string(result.Status))
	return result
}

// run holds the fallible body so Run can keep lock release, cleanup and
// status recording on every exit path.
func (p *Pipeline) run(ctx context.Context, job *models.VideoJob, renamedPath, rubric string) models.JobResult {
	datasetID := job.DatasetID
	if datasetID == "" {
		var err error
		datasetID, err = p.knowledge.CreateDataset(ctx, filepath.Base(renamedPath))
		if err != nil {
			return p.fail(job, fmt.Sprintf("dataset creation failed: %v", err))
		}
		job.DatasetID = datasetID
		if err := p.store.UpsertJob(job); err != nil {
			p.logger.Warn("failed to record dataset id", map[string]interface{}{
				"job":   job.ID,
				"error": err.Error(),
			})
		}
	}
	p.setProgress(job, 10, "dataset created")

	p.setProgress(job, 20, "segmenting")
	segments, err := p.segmenter.Segment(ctx, renamedPath)
	if err != nil {
		return p.fail(job, fmt.Sprintf("segmentation failed: %v", err))
	}
	p.setProgress(job, 30, "segmented")

	// Short or uncuttable videos are ingested as one full-length unit
	if len(segments) == 0 {
		segments = []models.Segment{p.implicitSegment(ctx, renamedPath)}
		p.logger.Info("no cuts detected, treating whole video as one segment", map[string]interface{}{
			"job": job.ID,
		})
	}
	job.Segments = len(segments)
	if err := p.store.UpsertJob(job); err != nil {
		p.logger.Warn("failed to record segment count", map[string]interface{}{
			"job":   job.ID,
			"error": err.Error(),
		})
	}

	prevAnalysis := ""
	for i, seg := range segments {
		p.metrics.SegmentExtracted(seg.Duration)

		url, err := p.objects.Upload(ctx, seg.ClipPath, "")
		if err != nil {
			return p.fail(job, fmt.Sprintf("upload of segment %d failed: %v", seg.Index, err))
		}
		ref, err := objectstore.CanonicalURL(url)
		if err != nil {
			ref = url
		}

		res := p.analyzer.Analyze(ctx, seg.ClipPath, job.Name, prevAnalysis, rubric)
		p.metrics.TokensUsed(res.TokenUsage)
		if res.Success {
			entry := fmt.Sprintf("%s\n\n%s", res.Description, ref)
			if err := p.knowledge.Ingest(ctx, datasetID, entry, seg.ClipPath); err != nil {
				return p.fail(job, fmt.Sprintf("ingestion of segment %d failed: %v", seg.Index, err))
			}
			prevAnalysis = res.Description
			p.metrics.SegmentAnalyzed("success")
		} else {
			// Continuity is not preserved across a failed segment
			prevAnalysis = ""
			p.metrics.SegmentAnalyzed("failed")
			p.logger.Warn("segment analysis failed, skipping ingestion", map[string]interface{}{
				"job":     job.ID,
				"segment": seg.Index,
				"error":   res.Error,
			})
		}

		progress := p.Ramp.Base + int(math.Round(float64(i+1)/float64(len(segments))*float64(p.Ramp.Span)))
		p.setProgress(job, progress, fmt.Sprintf("segment %d/%d", i+1, len(segments)))
	}

	if err := p.moveToFinished(renamedPath); err != nil {
		return p.fail(job, fmt.Sprintf("failed to move finished video: %v", err))
	}

	p.setProgress(job, 100, "done")
	return models.JobResult{
		JobID:       job.ID,
		VideoName:   job.Name,
		Status:      models.JobStatusSucceeded,
		DatasetID:   datasetID,
		Segments:    len(segments),
		CompletedAt: time.Now(),
	}
}

// renameSource moves the source file to {uuid}{ext} in its own directory.
// A name collision grants the job a fresh UUID once; a missing source is
// fatal.
func (p *Pipeline) renameSource(job *models.VideoJob) (string, error) {
	if _, err := os.Stat(job.SourcePath); err != nil {
		return "", fmt.Errorf("source file unreadable: %w", err)
	}

	dir := filepath.Dir(job.SourcePath)
	ext := filepath.Ext(job.SourcePath)

	dest := filepath.Join(dir, job.ID+ext)
	if _, err := os.Stat(dest); err == nil {
		regranted := uuid.NewString()
		p.logger.Warn("renamed target exists, regranting job id", map[string]interface{}{
			"job":       job.ID,
			"regranted": regranted,
		})
		job.ID = regranted
		dest = filepath.Join(dir, job.ID+ext)
	}

	if err := os.Rename(job.SourcePath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// implicitSegment wraps the whole renamed video as segment 1
func (p *Pipeline) implicitSegment(ctx context.Context, videoPath string) models.Segment {
	seg := models.Segment{Index: 1, ClipPath: videoPath}
	if info, err := p.prober.Probe(ctx, videoPath); err == nil {
		seg.EndTime = info.Duration
		seg.Duration = info.Duration
		seg.EndFrame = info.FrameCount
	} else {
		p.logger.Warn("probe of uncut video failed", map[string]interface{}{
			"video": videoPath,
			"error": err.Error(),
		})
	}
	return seg
}

// moveToFinished relocates the renamed source after a successful run
func (p *Pipeline) moveToFinished(renamedPath string) error {
	if err := os.MkdirAll(p.cfg.FinishedDir, 0755); err != nil {
		return err
	}
	return os.Rename(renamedPath, filepath.Join(p.cfg.FinishedDir, filepath.Base(renamedPath)))
}

// setProgress records a monotonically non-decreasing progress value
func (p *Pipeline) setProgress(job *models.VideoJob, progress int, step string) {
	if progress > 100 {
		progress = 100
	}
	if progress <= job.Progress {
		return
	}
	job.Progress = progress
	job.Step = step

	if err := p.store.UpdateJobProgress(job.ID, progress, step); err != nil {
		p.logger.Warn("failed to record progress", map[string]interface{}{
			"job":   job.ID,
			"error": err.Error(),
		})
	}
	if p.OnProgress != nil {
		p.OnProgress(progress, step)
	}
}

// fail marks the job failed; progress stays wherever it was
func (p *Pipeline) fail(job *models.VideoJob, msg string) models.JobResult {
	p.logger.Error("pipeline failed", map[string]interface{}{
		"job":   job.ID,
		"video": job.Name,
		"error": msg,
	})
	return models.JobResult{
		JobID:       job.ID,
		VideoName:   job.Name,
		Status:      models.JobStatusFailed,
		DatasetID:   job.DatasetID,
		Error:       msg,
		CompletedAt: time.Now(),
	}
}

// finishWithoutJob records terminal outcomes reached before the job started
// running (lock contention, lock backend failure).
func (p *Pipeline) finishWithoutJob(req models.JobRequest, name string, status models.JobStatus, errMsg string) models.JobResult {
	jobID := req.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	now := time.Now()
	job := &models.VideoJob{
		ID:          jobID,
		SourcePath:  req.SourcePath,
		Name:        name,
		Status:      status,
		CreatedAt:   now,
		CompletedAt: &now,
		Error:       errMsg,
	}
	if err := p.store.UpsertJob(job); err != nil {
		p.logger.Warn("failed to record job", map[string]interface{}{
			"job":   jobID,
			"error": err.Error(),
		})
	}
	p.metrics.VideoProcessed(string(status))
	return models.JobResult{
		JobID:       jobID,
		VideoName:   name,
		Status:      status,
		Error:       errMsg,
		CompletedAt: now,
	}
}
