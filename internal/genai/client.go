// Package genai talks to the optional model-backed analysis endpoint used by
// the profile extractor and intent classifier.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpclient "medchat-engine/internal/common/http"
	"medchat-engine/internal/models"
)

const (
	Name = "genai"

	extractPath  = "/api/ai/extract-profile"
	classifyPath = "/api/ai/classify-intent"
)

var (
	ErrRequestFailed = errors.New("GENAI_REQUEST_FAILED")
	ErrTimeout       = errors.New("GENAI_TIMEOUT")
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	config *Config
	client *httpclient.Client
	logger Logger
}

func NewClient(config *Config, log Logger) *Client {
	return &Client{
		config: config,
		client: httpclient.NewClient(config.Timeout),
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
	}
}

type ExtractRequest struct {
	Message  string           `json:"message"`
	History  []models.Message `json:"history,omitempty"`
	Language models.Language  `json:"language"`
	Fields   []models.Field   `json:"fields"`
}

type ExtractResponse struct {
	Fields     map[string]string `json:"fields"`
	Correction bool              `json:"correction"`
}

type ClassifyRequest struct {
	Message    string          `json:"message"`
	Language   models.Language `json:"language"`
	Categories []string        `json:"categories,omitempty"`
}

type ClassifyResponse struct {
	Intent     string  `json:"intent"`
	AnswerType string  `json:"answerType"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (c *Client) ExtractProfile(ctx context.Context, req *ExtractRequest) (*ExtractResponse, error) {
	var out ExtractResponse
	if err := c.post(ctx, extractPath, req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("profile extracted", map[string]interface{}{
		"fieldCount": len(out.Fields),
		"correction": out.Correction,
	})
	return &out, nil
}

func (c *Client) ClassifyIntent(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
	var out ClassifyResponse
	if err := c.post(ctx, classifyPath, req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("intent classified", map[string]interface{}{
		"intent":     out.Intent,
		"answerType": out.AnswerType,
		"confidence": out.Confidence,
	})
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ErrTimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			if resp != nil {
				resp.Body.Close()
			}
			return ErrTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			status := resp.StatusCode
			resp.Body.Close()
			resp = nil
			lastErr = fmt.Errorf("status %d", status)
			// client errors will not improve on retry
			if status >= 400 && status < 500 {
				break
			}
		}

		c.logger.Warn("genai request failed", map[string]interface{}{
			"path":    path,
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, lastErr)
	}
	if resp == nil {
		return fmt.Errorf("%w: no successful response after retries", ErrRequestFailed)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode error: %v", ErrRequestFailed, err)
	}
	return nil
}
