package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmejias/vidsift/pkg/logging"
	"github.com/lmejias/vidsift/pkg/models"
	"github.com/lmejias/vidsift/pkg/queue"
	"github.com/lmejias/vidsift/pkg/store"
)

// ProgressReporter exposes aggregate batch progress
type ProgressReporter interface {
	Progress() float64
}

// Submitter enqueues single-video jobs
type Submitter interface {
	Submit(ctx context.Context, req models.JobRequest) error
	GetStatus(ctx context.Context, jobID string) (queue.Status, error)
}

// Handler serves the polling status API
type Handler struct {
	store     store.Store
	submitter Submitter
	reporter  ProgressReporter
	logger    *logging.Logger
}

// NewHandler creates a Handler. submitter and reporter may be nil when the
// process runs without a queue or orchestrator.
func NewHandler(s store.Store, submitter Submitter, reporter ProgressReporter, logger *logging.Logger) *Handler {
	return &Handler{store: s, submitter: submitter, reporter: reporter, logger: logger}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/videos", h.SubmitVideo).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}/status", h.GetJobStatus).Methods("GET")
	r.HandleFunc("/progress", h.GetProgress).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// submitRequest is the POST /videos body
type submitRequest struct {
	SourcePath string `json:"source_path"`
	DatasetID  string `json:"dataset_id,omitempty"`
	Rubric     string `json:"rubric,omitempty"`
}

// SubmitVideo enqueues one video for a worker to pick up
func (h *Handler) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		http.Error(w, "Queue not configured", http.StatusServiceUnavailable)
		return
	}

	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.SourcePath == "" {
		http.Error(w, "source_path is required", http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(body.SourcePath); err != nil {
		http.Error(w, "source_path is not readable", http.StatusBadRequest)
		return
	}

	req := models.JobRequest{
		ID:           uuid.NewString(),
		SourcePath:   body.SourcePath,
		OriginalName: filepath.Base(body.SourcePath),
		DatasetID:    body.DatasetID,
		Rubric:       body.Rubric,
	}
	if err := h.submitter.Submit(r.Context(), req); err != nil {
		h.logger.Error("job submission failed", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": req.ID,
		"status": string(models.JobStatusQueued),
	})
}

// ListJobs returns job history, optionally filtered by ?status=
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var jobs []*models.VideoJob
	var err error

	if status := r.URL.Query().Get("status"); status != "" {
		jobs, err = h.store.GetJobs(models.JobStatus(status))
	} else {
		jobs, err = h.store.GetAllJobs()
	}
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*models.VideoJob{}
	}

	json.NewEncoder(w).Encode(jobs)
}

// GetJob returns one job record
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.store.GetJob(id)
	if errors.Is(err, store.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(job)
}

// GetJobStatus returns the live queue status of a job, falling back to the
// job store for terminal jobs whose queue record expired.
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.submitter != nil {
		status, err := h.submitter.GetStatus(r.Context(), id)
		if err == nil {
			json.NewEncoder(w).Encode(status)
			return
		}
		if !errors.Is(err, queue.ErrStatusNotFound) {
			http.Error(w, "Failed to get job status", http.StatusInternalServerError)
			return
		}
	}

	job, err := h.store.GetJob(id)
	if errors.Is(err, store.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to get job status", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(queue.Status{
		State:    job.Status,
		Step:     job.Step,
		Progress: job.Progress,
		Error:    job.Error,
	})
}

// GetProgress returns the aggregate batch progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		http.Error(w, "No batch run in progress", http.StatusServiceUnavailable)
		return
	}
	json.NewEncoder(w).Encode(map[string]float64{
		"progress": h.reporter.Progress(),
	})
}

// Health reports process liveness and store reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// NewServer wires the handler into an http.Server on the given address
func NewServer(addr string, h *Handler) *http.Server {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
