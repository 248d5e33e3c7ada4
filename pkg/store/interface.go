package store

import (
	"errors"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/models"
)

// Store defines the interface for job history persistence.
// SQLite, PostgreSQL and the in-memory store implement it.
type Store interface {
	// Job operations
	UpsertJob(job *models.VideoJob) error
	GetJob(id string) (*models.VideoJob, error)
	GetAllJobs() ([]*models.VideoJob, error)
	GetJobs(status models.JobStatus) ([]*models.VideoJob, error)
	UpdateJobStatus(id string, status models.JobStatus, errorMsg string) error
	UpdateJobProgress(id string, progress int, step string) error

	// Lifecycle
	Close() error
	HealthCheck() error
}

var (
	// ErrJobNotFound is returned when a job id has no record
	ErrJobNotFound = errors.New("job not found")

	// ErrUnsupportedDatabase is returned for unknown store types
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// NewStore creates a store based on configuration
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		return NewPostgreSQLStore(cfg.DSN)
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = "vidsift.db"
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, ErrUnsupportedDatabase
	}
}
