package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lmejias/vidsift/pkg/models"
)

// PostgreSQLStore is a PostgreSQL-based implementation of the job store
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore creates a new PostgreSQL store
func NewPostgreSQLStore(dsn string) (*PostgreSQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &PostgreSQLStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *PostgreSQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS video_jobs (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		name TEXT NOT NULL,
		dataset_id TEXT,
		status TEXT NOT NULL,
		progress INTEGER DEFAULT 0,
		step TEXT,
		segments INTEGER DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_video_jobs_status ON video_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_video_jobs_created ON video_jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertJob inserts or replaces a job record
func (s *PostgreSQLStore) UpsertJob(job *models.VideoJob) error {
	_, err := s.db.Exec(`
		INSERT INTO video_jobs
		(id, source_path, name, dataset_id, status, progress, step, segments,
		 created_at, started_at, completed_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			source_path = EXCLUDED.source_path,
			name = EXCLUDED.name,
			dataset_id = EXCLUDED.dataset_id,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			step = EXCLUDED.step,
			segments = EXCLUDED.segments,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error
	`, job.ID, job.SourcePath, job.Name, job.DatasetID, job.Status, job.Progress,
		job.Step, job.Segments, job.CreatedAt, job.StartedAt, job.CompletedAt, job.Error)

	return err
}

// GetJob retrieves a job by ID
func (s *PostgreSQLStore) GetJob(id string) (*models.VideoJob, error) {
	row := s.db.QueryRow(`
		SELECT id, source_path, name, dataset_id, status, progress, step, segments,
		       created_at, started_at, completed_at, error
		FROM video_jobs WHERE id = $1
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetAllJobs returns all jobs ordered newest first
func (s *PostgreSQLStore) GetAllJobs() ([]*models.VideoJob, error) {
	rows, err := s.db.Query(`
		SELECT id, source_path, name, dataset_id, status, progress, step, segments,
		       created_at, started_at, completed_at, error
		FROM video_jobs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJobs returns jobs filtered by status
func (s *PostgreSQLStore) GetJobs(status models.JobStatus) ([]*models.VideoJob, error) {
	rows, err := s.db.Query(`
		SELECT id, source_path, name, dataset_id, status, progress, step, segments,
		       created_at, started_at, completed_at, error
		FROM video_jobs WHERE status = $1 ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// UpdateJobStatus updates the status and error message of a job
func (s *PostgreSQLStore) UpdateJobStatus(id string, status models.JobStatus, errorMsg string) error {
	var completedAt interface{}
	if status.IsTerminal() {
		completedAt = time.Now()
	}

	result, err := s.db.Exec(`
		UPDATE video_jobs SET status = $1, error = $2,
		       completed_at = COALESCE($3, completed_at)
		WHERE id = $4
	`, status, errorMsg, completedAt, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateJobProgress updates the progress percentage and step of a job
func (s *PostgreSQLStore) UpdateJobProgress(id string, progress int, step string) error {
	result, err := s.db.Exec(`
		UPDATE video_jobs SET progress = $1, step = $2 WHERE id = $3
	`, progress, step, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable
func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
