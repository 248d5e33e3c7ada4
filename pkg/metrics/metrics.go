package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors
type Metrics struct {
	videosProcessed  *prometheus.CounterVec
	segmentsAnalyzed *prometheus.CounterVec
	analysisRetries  prometheus.Counter
	tokensUsed       prometheus.Counter
	activePipelines  prometheus.Gauge
	segmentDuration  prometheus.Histogram
}

// New creates and registers the pipeline metrics on the given registerer.
// Pass prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		videosProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidsift_videos_processed_total",
				Help: "Total videos processed by final status",
			},
			[]string{"status"},
		),
		segmentsAnalyzed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidsift_segments_analyzed_total",
				Help: "Total segments analyzed by outcome",
			},
			[]string{"outcome"}, // "success", "failed"
		),
		analysisRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vidsift_analysis_retries_total",
				Help: "Total retried analysis requests",
			},
		),
		tokensUsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vidsift_analysis_tokens_total",
				Help: "Total tokens consumed by the description service",
			},
		),
		activePipelines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidsift_active_pipelines",
				Help: "Number of videos currently being processed",
			},
		),
		segmentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vidsift_segment_duration_seconds",
				Help:    "Duration of extracted segments in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}

	reg.MustRegister(m.videosProcessed)
	reg.MustRegister(m.segmentsAnalyzed)
	reg.MustRegister(m.analysisRetries)
	reg.MustRegister(m.tokensUsed)
	reg.MustRegister(m.activePipelines)
	reg.MustRegister(m.segmentDuration)

	return m
}

// VideoProcessed records one finished video by final status
func (m *Metrics) VideoProcessed(status string) {
	m.videosProcessed.WithLabelValues(status).Inc()
}

// SegmentAnalyzed records one analyzed segment by outcome
func (m *Metrics) SegmentAnalyzed(outcome string) {
	m.segmentsAnalyzed.WithLabelValues(outcome).Inc()
}

// AnalysisRetried records one retried description request
func (m *Metrics) AnalysisRetried() {
	m.analysisRetries.Inc()
}

// TokensUsed adds to the token consumption counter
func (m *Metrics) TokensUsed(n int) {
	m.tokensUsed.Add(float64(n))
}

// PipelineStarted increments the active pipeline gauge
func (m *Metrics) PipelineStarted() {
	m.activePipelines.Inc()
}

// PipelineFinished decrements the active pipeline gauge
func (m *Metrics) PipelineFinished() {
	m.activePipelines.Dec()
}

// SegmentExtracted records an extracted segment's duration
func (m *Metrics) SegmentExtracted(seconds float64) {
	m.segmentDuration.Observe(seconds)
}
