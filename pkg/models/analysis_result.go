package models

// AnalysisResult is the structured output of the external analyzer.
type AnalysisResult struct {
	Summary         string             `json:"summary"`
	Confidence      float64            `json:"confidence"`
	Recommendations []Recommendation   `json:"recommendations"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Insights        []Insight          `json:"insights,omitempty"`
}

type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Actionable  bool   `json:"actionable"`
}

type Insight struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}
