package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
)

// DescriptionClient talks to an OpenAI-compatible vision chat-completions
// endpoint. The service may be rate limited and slow, so every request goes
// through a client-side limiter and a generous timeout.
type DescriptionClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewDescriptionClient creates a DescriptionClient from analyzer config
func NewDescriptionClient(cfg config.AnalyzerConfig, logger *logging.Logger) *DescriptionClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &DescriptionClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Describe sends one multi-modal request combining the prompt text with the
// sampled frames and returns the description text plus token usage. An empty
// message content in the response is treated as a failure.
func (c *DescriptionClient) Describe(ctx context.Context, prompt string, framePaths []string) (string, int, error) {
	parts := make([]contentPart, 0, len(framePaths)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})

	for _, frame := range framePaths {
		data, err := os.ReadFile(frame)
		if err != nil {
			return "", 0, fmt.Errorf("failed to read frame %s: %w", frame, err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + encoded},
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("description request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("description request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", 0, fmt.Errorf("description service returned empty content")
	}

	c.logger.Debug("description request complete", map[string]interface{}{
		"elapsed": time.Since(start).String(),
		"tokens":  parsed.Usage.TotalTokens,
	})

	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}
