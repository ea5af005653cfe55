// Package models contains shared data models used across the analyzr codebase.
package models

import (
	"context"
)

// Analyzer is the interface every external analysis backend implements.
// Callers depend on this interface, never on a concrete backend.
type Analyzer interface {
	// Analyze runs the analysis for one job context.
	Analyze(ctx context.Context, req AnalysisContext) (AnalysisResult, error)
	// Health reports whether the backend is reachable and ready.
	Health(ctx context.Context) bool
	// Name returns the backend identifier (e.g., "core", "mock").
	Name() string
}
