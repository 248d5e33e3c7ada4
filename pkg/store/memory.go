package store

import (
	"sort"
	"sync"
	"time"

	"github.com/lmejias/vidsift/pkg/models"
)

// MemoryStore is an in-memory implementation of the job store, used in
// tests and for one-shot runs where no history needs to survive restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.VideoJob
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.VideoJob)}
}

// UpsertJob inserts or replaces a job record
func (s *MemoryStore) UpsertJob(job *models.VideoJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryStore) GetJob(id string) (*models.VideoJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// GetAllJobs returns all jobs ordered newest first
func (s *MemoryStore) GetAllJobs() ([]*models.VideoJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.VideoJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// GetJobs returns jobs filtered by status
func (s *MemoryStore) GetJobs(status models.JobStatus) ([]*models.VideoJob, error) {
	all, err := s.GetAllJobs()
	if err != nil {
		return nil, err
	}

	var filtered []*models.VideoJob
	for _, job := range all {
		if job.Status == status {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

// UpdateJobStatus updates the status and error message of a job
func (s *MemoryStore) UpdateJobStatus(id string, status models.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Error = errorMsg
	if status.IsTerminal() && job.CompletedAt == nil {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

// UpdateJobProgress updates the progress percentage and step of a job
func (s *MemoryStore) UpdateJobProgress(id string, progress int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Progress = progress
	job.Step = step
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the in-memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}
