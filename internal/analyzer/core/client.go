// Package core calls the core analysis service over HTTP.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/kiranshivaraju/analyzr/internal/analyzer"
	"github.com/kiranshivaraju/analyzr/internal/config"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// Client implements models.Analyzer against the core service's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a core service client. A nil logger uses slog.Default().
func NewClient(cfg config.CoreServiceConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (c *Client) Name() string { return "core" }

func (c *Client) Analyze(ctx context.Context, req models.AnalysisContext) (models.AnalysisResult, error) {
	body, err := json.Marshal(analyzeRequest{
		ProjectID:  req.ProjectID,
		TestID:     req.TestID,
		Parameters: req.Parameters,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("encoding analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logger.Info("calling core analysis service", "project_id", req.ProjectID, "test_id", req.TestID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.AnalysisResult{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.AnalysisResult{}, fmt.Errorf("%w: status %d", analyzer.ErrProviderUnavailable, resp.StatusCode)
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", analyzer.ErrInvalidResponse, err)
	}
	normalize(&result)

	c.logger.Info("core analysis service response received",
		"project_id", req.ProjectID, "test_id", req.TestID, "confidence", result.Confidence)

	return result, nil
}

// Health reports whether GET /health answers 200.
func (c *Client) Health(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("core service health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// classifyError maps transport-level errors to analyzer sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", analyzer.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", analyzer.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", analyzer.ErrProviderUnavailable, err)
}

func normalize(r *models.AnalysisResult) {
	r.Confidence = min(max(r.Confidence, 0), 1)
	if r.Recommendations == nil {
		r.Recommendations = []models.Recommendation{}
	}
	if r.Metrics == nil {
		r.Metrics = map[string]float64{}
	}
	if r.Insights == nil {
		r.Insights = []models.Insight{}
	}
}

type analyzeRequest struct {
	ProjectID  string                  `json:"project_id"`
	TestID     string                  `json:"test_id"`
	Parameters map[string]any          `json:"parameters,omitempty"`
	Metadata   *models.ContextMetadata `json:"metadata,omitempty"`
}

var _ models.Analyzer = (*Client)(nil)
