package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lmejias/vidsift/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the job store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL plus a busy timeout keeps the single writer from tripping over
	// readers polling job status.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_cache_size=-8000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
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
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_video_jobs_status ON video_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_video_jobs_created ON video_jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertJob inserts or replaces a job record
func (s *SQLiteStore) UpsertJob(job *models.VideoJob) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO video_jobs
		(id, source_path, name, dataset_id, status, progress, step, segments,
		 created_at, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.SourcePath, job.Name, job.DatasetID, job.Status, job.Progress,
		job.Step, job.Segments, job.CreatedAt, job.StartedAt, job.CompletedAt, job.Error)

	return err
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(id string) (*models.VideoJob, error) {
	row := s.db.QueryRow(`
		SELECT id, source_path, name, dataset_id, status, progress, step, segments,
		       created_at, started_at, completed_at, error
		FROM video_jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetAllJobs returns all jobs ordered newest first
func (s *SQLiteStore) GetAllJobs() ([]*models.VideoJob, error) {
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
func (s *SQLiteStore) GetJobs(status models.JobStatus) ([]*models.VideoJob, error) {
	rows, err := s.db.Query(`
		SELECT id, source_path, name, dataset_id, status, progress, step, segments,
		       created_at, started_at, completed_at, error
		FROM video_jobs WHERE status = ? ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// UpdateJobStatus updates the status and error message of a job
func (s *SQLiteStore) UpdateJobStatus(id string, status models.JobStatus, errorMsg string) error {
	var completedAt interface{}
	if status.IsTerminal() {
		completedAt = time.Now()
	}

	result, err := s.db.Exec(`
		UPDATE video_jobs SET status = ?, error = ?,
		       completed_at = COALESCE(?, completed_at)
		WHERE id = ?
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
func (s *SQLiteStore) UpdateJobProgress(id string, progress int, step string) error {
	result, err := s.db.Exec(`
		UPDATE video_jobs SET progress = ?, step = ? WHERE id = ?
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.VideoJob, error) {
	var job models.VideoJob
	var step, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.SourcePath, &job.Name, &job.DatasetID, &job.Status,
		&job.Progress, &step, &job.Segments, &job.CreatedAt, &startedAt, &completedAt, &errMsg)
	if err != nil {
		return nil, err
	}

	job.Step = step.String
	job.Error = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*models.VideoJob, error) {
	var jobs []*models.VideoJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
