package mock

import (
	"context"

	"github.com/kiranshivaraju/analyzr/internal/analyzer"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// MockProvider satisfies models.Analyzer for tests and local development.
type MockProvider struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req models.AnalysisContext) (models.AnalysisResult, error)
	HealthFunc  func(ctx context.Context) bool
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Analyze(ctx context.Context, req models.AnalysisContext) (models.AnalysisResult, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return models.AnalysisResult{}, nil
}

func (m *MockProvider) Health(ctx context.Context) bool {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return true
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, req models.AnalysisContext) (models.AnalysisResult, error) {
			return models.AnalysisResult{
				Summary:    "Mock analysis of " + req.ProjectID + "/" + req.TestID,
				Confidence: 0.85,
				Recommendations: []models.Recommendation{{
					Title:       "Review slow steps",
					Description: "Simulated recommendation from mock analyzer",
					Priority:    "medium",
					Category:    "performance",
					Actionable:  true,
				}},
				Metrics:  map[string]float64{"duration_ms": 1200},
				Insights: []models.Insight{{Type: "info", Message: "Mock insight"}},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose Analyze always returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.AnalysisContext) (models.AnalysisResult, error) {
			return models.AnalysisResult{}, err
		},
		HealthFunc: func(context.Context) bool { return false },
	}
}

// NewBlockingProvider returns a MockProvider that waits on release (or ctx) before answering.
func NewBlockingProvider(release <-chan struct{}, result models.AnalysisResult) *MockProvider {
	return &MockProvider{
		Name_: "mock-blocking",
		AnalyzeFunc: func(ctx context.Context, _ models.AnalysisContext) (models.AnalysisResult, error) {
			select {
			case <-release:
				return result, nil
			case <-ctx.Done():
				return models.AnalysisResult{}, analyzer.ErrInferenceTimeout
			}
		},
	}
}

// Compile-time check that MockProvider implements Analyzer.
var _ models.Analyzer = (*MockProvider)(nil)
