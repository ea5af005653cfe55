package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/analyzr/internal/analyzer"
	"github.com/kiranshivaraju/analyzr/internal/config"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

func coreServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(config.CoreServiceConfig{BaseURL: url, APIKey: "core-secret", Timeout: 2 * time.Second}, nil)
}

func sampleContext() models.AnalysisContext {
	return models.AnalysisContext{
		ProjectID:  "proj-test-1",
		TestID:     "test-123",
		Parameters: map[string]any{"depth": "full"},
		Metadata:   &models.ContextMetadata{Environment: "staging", Version: "1.2.3"},
	}
}

func TestAnalyze_Success(t *testing.T) {
	var gotBody analyzeRequest
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/analyze" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "core-secret" {
			t.Errorf("expected x-api-key core-secret, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"summary": "Test analysis",
			"confidence": 0.9,
			"recommendations": [{"title":"Cache","description":"Add a cache","priority":"high","category":"performance","actionable":true}],
			"metrics": {"p95_ms": 120.5},
			"insights": [{"type":"warning","message":"slow query"}]
		}`))
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	result, err := c.Analyze(context.Background(), sampleContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.ProjectID != "proj-test-1" || gotBody.TestID != "test-123" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	if gotBody.Metadata == nil || gotBody.Metadata.Environment != "staging" {
		t.Errorf("expected metadata to be forwarded, got %+v", gotBody.Metadata)
	}
	if result.Summary != "Test analysis" {
		t.Errorf("unexpected summary: %s", result.Summary)
	}
	if result.Confidence != 0.9 {
		t.Errorf("unexpected confidence: %v", result.Confidence)
	}
	if len(result.Recommendations) != 1 || result.Recommendations[0].Priority != "high" {
		t.Errorf("unexpected recommendations: %+v", result.Recommendations)
	}
	if result.Metrics["p95_ms"] != 120.5 {
		t.Errorf("unexpected metrics: %+v", result.Metrics)
	}
	if len(result.Insights) != 1 {
		t.Errorf("expected 1 insight, got %d", len(result.Insights))
	}
}

func TestAnalyze_EmptyCollectionsNormalized(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summary":"ok","confidence":0.5}`))
	})
	defer ts.Close()

	result, err := newTestClient(t, ts.URL).Analyze(context.Background(), sampleContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recommendations == nil || result.Metrics == nil || result.Insights == nil {
		t.Errorf("expected empty non-nil collections, got %+v", result)
	}
}

func TestAnalyze_ServerError(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Analyze(context.Background(), sampleContext())
	if !errors.Is(err, analyzer.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Analyze(context.Background(), sampleContext())
	if !errors.Is(err, analyzer.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestAnalyze_ConfidenceClamped(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summary":"x","confidence":1.7}`))
	})
	defer ts.Close()

	result, err := newTestClient(t, ts.URL).Analyze(context.Background(), sampleContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", result.Confidence)
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"summary":"late","confidence":0.1}`))
	})
	defer ts.Close()

	c := NewClient(config.CoreServiceConfig{BaseURL: ts.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := c.Analyze(context.Background(), sampleContext())
	if !errors.Is(err, analyzer.ErrInferenceTimeout) {
		t.Fatalf("expected ErrInferenceTimeout, got %v", err)
	}
}

func TestAnalyze_Unreachable(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).Analyze(context.Background(), sampleContext())
	if !errors.Is(err, analyzer.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	defer ts.Close()

	if !newTestClient(t, ts.URL).Health(context.Background()) {
		t.Error("expected healthy")
	}
}

func TestHealth_Non200(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer ts.Close()

	if newTestClient(t, ts.URL).Health(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestHealth_Unreachable(t *testing.T) {
	ts := coreServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := ts.URL
	ts.Close()

	if newTestClient(t, url).Health(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestName(t *testing.T) {
	if got := newTestClient(t, "http://localhost").Name(); got != "core" {
		t.Errorf("expected core, got %s", got)
	}
}
