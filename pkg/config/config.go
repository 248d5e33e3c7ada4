package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for vidsift. Each component receives its
// own typed section at construction time; there is no process-wide mutable
// configuration state.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
	LogJSON  bool   `mapstructure:"log_json"`

	Segmenter    SegmenterConfig    `mapstructure:"segmenter"`
	Analyzer     AnalyzerConfig     `mapstructure:"analyzer"`
	ObjectStore  ObjectStoreConfig  `mapstructure:"object_store"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Lock         LockConfig         `mapstructure:"lock"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Store        StoreConfig        `mapstructure:"store"`
}

// SegmenterConfig controls scene-cut segmentation
type SegmenterConfig struct {
	Threshold   float64 `mapstructure:"threshold"`    // higher = less sensitive, fewer cuts
	MinDuration float64 `mapstructure:"min_duration"` // seconds, shorter candidates are discarded
	OutputDir   string  `mapstructure:"output_dir"`   // materialized clips
	ScratchDir  string  `mapstructure:"scratch_dir"`  // renamed sources, sampled frames
	FinishedDir string  `mapstructure:"finished_dir"` // source videos after successful ingest
	FFmpegPath  string  `mapstructure:"ffmpeg_path"`
	FFprobePath string  `mapstructure:"ffprobe_path"`
}

// AnalyzerConfig controls the description-service client
type AnalyzerConfig struct {
	BaseURL          string  `mapstructure:"base_url"`
	APIKey           string  `mapstructure:"api_key"`
	Model            string  `mapstructure:"model"`
	FramesPerSegment int     `mapstructure:"frames_per_segment"`
	Rubric           string  `mapstructure:"rubric"` // overrides the default dimension list
	RequestsPerSec   float64 `mapstructure:"requests_per_sec"`
	Burst            int     `mapstructure:"burst"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
}

// ObjectStoreConfig controls clip uploads
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// KnowledgeConfig controls the knowledge-store client
type KnowledgeConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ParentID string `mapstructure:"parent_id"`
}

// OrchestratorConfig controls batch processing
type OrchestratorConfig struct {
	InputDir      string        `mapstructure:"input_dir"`
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"` // 0 = derive from CPU count
	MaxRetries    int           `mapstructure:"max_retries"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// LockConfig selects the per-video resource lock backend
type LockConfig struct {
	Backend       string `mapstructure:"backend"` // "file" or "redis"
	Dir           string `mapstructure:"dir"`     // file backend lock directory
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// QueueConfig controls the Redis task queue
type QueueConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"` // list key jobs are pushed to
}

// StoreConfig controls the job-history store
type StoreConfig struct {
	Type string `mapstructure:"type"` // "sqlite", "postgres" or "memory"
	Path string `mapstructure:"path"` // sqlite database path
	DSN  string `mapstructure:"dsn"`  // postgres connection string
}

// SetDefaults registers defaults on the given viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("segmenter.threshold", 27.0)
	v.SetDefault("segmenter.min_duration", 0.1)
	v.SetDefault("segmenter.output_dir", "data/segments")
	v.SetDefault("segmenter.scratch_dir", "data/scratch")
	v.SetDefault("segmenter.finished_dir", "data/finished")
	v.SetDefault("segmenter.ffmpeg_path", "ffmpeg")
	v.SetDefault("segmenter.ffprobe_path", "ffprobe")

	v.SetDefault("analyzer.frames_per_segment", 2)
	v.SetDefault("analyzer.requests_per_sec", 1.0)
	v.SetDefault("analyzer.burst", 2)
	v.SetDefault("analyzer.timeout_seconds", 120)

	v.SetDefault("orchestrator.batch_size", 10)
	v.SetDefault("orchestrator.concurrency", 0)
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.watch_interval", 30*time.Second)

	v.SetDefault("lock.backend", "file")
	v.SetDefault("lock.dir", "data/locks")

	v.SetDefault("queue.addr", "localhost:6379")
	v.SetDefault("queue.db", 0)
	v.SetDefault("queue.key", "vidsift:jobs")

	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.path", "vidsift.db")
}

// Load decodes and validates the configuration from a viper instance
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints at load time
func (c *Config) Validate() error {
	if c.Segmenter.Threshold <= 0 {
		return fmt.Errorf("segmenter.threshold must be positive, got %v", c.Segmenter.Threshold)
	}
	if c.Segmenter.MinDuration < 0 {
		return fmt.Errorf("segmenter.min_duration must not be negative, got %v", c.Segmenter.MinDuration)
	}
	if c.Analyzer.FramesPerSegment < 1 {
		return fmt.Errorf("analyzer.frames_per_segment must be at least 1, got %d", c.Analyzer.FramesPerSegment)
	}
	if c.Orchestrator.BatchSize < 1 {
		return fmt.Errorf("orchestrator.batch_size must be at least 1, got %d", c.Orchestrator.BatchSize)
	}
	if c.Orchestrator.Concurrency < 0 {
		return fmt.Errorf("orchestrator.concurrency must not be negative, got %d", c.Orchestrator.Concurrency)
	}
	if c.Orchestrator.Concurrency > c.Orchestrator.BatchSize && c.Orchestrator.Concurrency != 0 {
		return fmt.Errorf("orchestrator.concurrency (%d) must not exceed batch_size (%d)",
			c.Orchestrator.Concurrency, c.Orchestrator.BatchSize)
	}
	if c.Orchestrator.MaxRetries < 1 {
		return fmt.Errorf("orchestrator.max_retries must be at least 1, got %d", c.Orchestrator.MaxRetries)
	}
	switch c.Lock.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("lock.backend must be \"file\" or \"redis\", got %q", c.Lock.Backend)
	}
	switch c.Store.Type {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("store.type must be \"sqlite\", \"postgres\" or \"memory\", got %q", c.Store.Type)
	}
	return nil
}
