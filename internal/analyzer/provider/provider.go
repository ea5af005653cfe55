// Package provider selects the external analyzer backend from configuration.
package provider

import (
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/analyzr/internal/analyzer/core"
	"github.com/kiranshivaraju/analyzr/internal/analyzer/mock"
	"github.com/kiranshivaraju/analyzr/internal/config"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// New constructs the analyzer named by cfg.Provider. Called once at server startup.
func New(cfg config.AnalyzerConfig, logger *slog.Logger) (models.Analyzer, error) {
	switch cfg.Provider {
	case "core":
		return core.NewClient(cfg.Core, logger), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q: must be one of core, mock", cfg.Provider)
	}
}
