package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
)

// Service is the knowledge-base surface the pipeline depends on
type Service interface {
	CreateDataset(ctx context.Context, name string) (string, error)
	Ingest(ctx context.Context, datasetID, description, clipPath string) error
}

// Client talks to the knowledge-base REST API. It logs in lazily and caches
// the session token for subsequent calls. Safe for concurrent use; one client
// is shared by all concurrently running pipelines.
type Client struct {
	baseURL    string
	username   string
	password   string
	parentID   string
	httpClient *http.Client
	logger     *logging.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a knowledge-base client from config
func NewClient(cfg config.KnowledgeConfig, logger *logging.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		parentID:   cfg.ParentID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

type createDatasetRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	Type     string `json:"type"`
}

// createDatasetResponse tolerates both a bare string id and an object payload
type createDatasetResponse struct {
	ID string
}

func (r *createDatasetResponse) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		r.ID = bare
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

type ingestRequest struct {
	DatasetID string `json:"datasetId"`
	Question  string `json:"q"`
	Answer    string `json:"a"`
}

// login authenticates once and returns the cached session token. The mutex
// is held across the login request, so concurrent callers log in at most once.
func (c *Client) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	var parsed loginResponse
	if err := c.post(ctx, "/api/support/user/account/loginByPassword", "", body, &parsed); err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}

	c.token = parsed.Token
	c.logger.Debug("knowledge base login ok", nil)
	return c.token, nil
}

// CreateDataset creates a dataset container and returns its id
func (c *Client) CreateDataset(ctx context.Context, name string) (string, error) {
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(createDatasetRequest{
		Name:     name,
		ParentID: c.parentID,
		Type:     "dataset",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal dataset request: %w", err)
	}

	var parsed createDatasetResponse
	if err := c.post(ctx, "/api/core/dataset/create", token, body, &parsed); err != nil {
		return "", fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("dataset create response missing id")
	}

	c.logger.Info("dataset created", map[string]interface{}{
		"name": name,
		"id":   parsed.ID,
	})
	return parsed.ID, nil
}

// Ingest records one segment's analysis text as the question and the clip's
// absolute local path as the answer.
func (c *Client) Ingest(ctx context.Context, datasetID, description, clipPath string) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(clipPath)
	if err != nil {
		return fmt.Errorf("failed to resolve clip path: %w", err)
	}

	body, err := json.Marshal(ingestRequest{
		DatasetID: datasetID,
		Question:  description,
		Answer:    absPath,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ingest request: %w", err)
	}

	if err := c.post(ctx, "/api/core/dataset/data/insertData", token, body, nil); err != nil {
		return fmt.Errorf("failed to ingest segment: %w", err)
	}
	return nil
}

// post issues a JSON POST, authenticated when token is non-empty, and
// decodes the response into out
func (c *Client) post(ctx context.Context, path, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request to %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	// The API wraps payloads in a data envelope
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(raw, out)
}
