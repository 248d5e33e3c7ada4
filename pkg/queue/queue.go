package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
)

// statusTTL bounds how long terminal job status survives in redis
const statusTTL = 24 * time.Hour

// ErrNoJob is returned by Claim when the queue stays empty past the timeout
var ErrNoJob = errors.New("no job available")

// ErrStatusNotFound is returned when a job id has no status record
var ErrStatusNotFound = errors.New("job status not found")

// Status is the pollable state of a queued job
type Status struct {
	State    models.JobStatus  `json:"state"`
	Current  int               `json:"current,omitempty"` // segment being processed
	Total    int               `json:"total,omitempty"`   // total segments
	Step     string            `json:"step,omitempty"`
	Progress int               `json:"progress"`
	Error    string            `json:"error,omitempty"`
	Result   *models.JobResult `json:"result,omitempty"`
}

// Queue is a Redis-backed task queue carrying single-video pipeline
// invocations from submitters to workers.
type Queue struct {
	client *redis.Client
	key    string
	logger *logging.Logger
}

// New connects to redis and verifies the connection
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	key := cfg.Key
	if key == "" {
		key = "vidsift:jobs"
	}
	return &Queue{client: client, key: key, logger: logger}, nil
}

// NewFromClient wraps an existing redis client
func NewFromClient(client *redis.Client, key string, logger *logging.Logger) *Queue {
	if key == "" {
		key = "vidsift:jobs"
	}
	return &Queue{client: client, key: key, logger: logger}
}

// Submit enqueues a job request and records its queued status
func (q *Queue) Submit(ctx context.Context, req models.JobRequest) error {
	if req.ID == "" {
		return fmt.Errorf("job request must carry a pre-assigned id")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}

	if err := q.SetStatus(ctx, req.ID, Status{State: models.JobStatusQueued, Progress: 1}); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("job submitted", map[string]interface{}{
		"job":   req.ID,
		"video": req.OriginalName,
	})
	return nil
}

// Claim blocks up to timeout for the next job request. ErrNoJob is returned
// when the queue stays empty; callers loop on it.
func (q *Queue) Claim(ctx context.Context, timeout time.Duration) (models.JobRequest, error) {
	var req models.JobRequest

	vals, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return req, ErrNoJob
	}
	if err != nil {
		return req, fmt.Errorf("failed to claim job: %w", err)
	}
	// BRPOP returns [key, value]
	if len(vals) != 2 {
		return req, fmt.Errorf("unexpected BRPOP reply length %d", len(vals))
	}

	if err := json.Unmarshal([]byte(vals[1]), &req); err != nil {
		return req, fmt.Errorf("failed to decode job request: %w", err)
	}
	return req, nil
}

// SetStatus replaces the pollable status of a job
func (q *Queue) SetStatus(ctx context.Context, jobID string, status Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.client.Set(ctx, q.statusKey(jobID), payload, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to record status: %w", err)
	}
	return nil
}

// GetStatus reads the pollable status of a job
func (q *Queue) GetStatus(ctx context.Context, jobID string) (Status, error) {
	var status Status

	raw, err := q.client.Get(ctx, q.statusKey(jobID)).Result()
	if err == redis.Nil {
		return status, ErrStatusNotFound
	}
	if err != nil {
		return status, fmt.Errorf("failed to read status: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return status, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}

// Len reports the number of queued jobs
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close releases the redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) statusKey(jobID string) string {
	return q.key + ":status:" + jobID
}
