// Package notify broadcasts job outcome events to every live connection of an organization.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/internal/telemetry"
	"github.com/kiranshivaraju/analyzr/pkg/models"
	"golang.org/x/sync/errgroup"
)

type EventType string

const (
	EventAnalysisComplete EventType = "ANALYSIS_COMPLETE"
	EventAnalysisFailed   EventType = "ANALYSIS_FAILED"
)

// Envelope is the JSON document pushed to each connection.
type Envelope struct {
	Type  EventType `json:"type"`
	OrgID string    `json:"org_id"`
	Data  EventData `json:"data"`
}

type EventData struct {
	JobID  string                 `json:"job_id"`
	Status models.JobStatus       `json:"status"`
	Result *models.AnalysisResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// ConnectionDirectory resolves the live connections of an organization.
type ConnectionDirectory interface {
	ConnectionsFor(ctx context.Context, orgID string) ([]string, error)
}

// PushChannel delivers a payload to one connection.
type PushChannel interface {
	Send(ctx context.Context, connID string, payload []byte) error
}

type Fanout struct {
	directory ConnectionDirectory
	channel   PushChannel
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

func NewFanout(directory ConnectionDirectory, channel PushChannel, logger *slog.Logger, metrics *telemetry.Metrics) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{directory: directory, channel: channel, logger: logger, metrics: metrics}
}

func (f *Fanout) NotifyComplete(ctx context.Context, orgID, jobID string, result models.AnalysisResult) error {
	return f.broadcast(ctx, Envelope{
		Type:  EventAnalysisComplete,
		OrgID: orgID,
		Data:  EventData{JobID: jobID, Status: models.JobStatusCompleted, Result: &result},
	})
}

func (f *Fanout) NotifyFailed(ctx context.Context, orgID, jobID, message string) error {
	return f.broadcast(ctx, Envelope{
		Type:  EventAnalysisFailed,
		OrgID: orgID,
		Data:  EventData{JobID: jobID, Status: models.JobStatusFailed, Error: message},
	})
}

// broadcast attempts every connection even when some fail. Any failure is
// reported as one internal error.
func (f *Fanout) broadcast(ctx context.Context, env Envelope) error {
	log := f.logger.With("job_id", env.Data.JobID, "org_id", env.OrgID, "type", env.Type)

	ids, err := f.directory.ConnectionsFor(ctx, env.OrgID)
	if err != nil {
		log.Error("failed to resolve organization connections", "error", err)
		return apperror.Internal("Failed to send notification", err)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return apperror.Internal("Failed to send notification", fmt.Errorf("encode envelope: %w", err))
	}

	var failed atomic.Int64
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := f.channel.Send(ctx, id, payload); err != nil {
				failed.Add(1)
				return fmt.Errorf("connection %s: %w", id, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		n := int(failed.Load())
		f.metrics.NotificationFailed(string(env.Type), n)
		log.Warn("notification partially delivered",
			"connections", len(ids), "delivered", len(ids)-n, "failed", n, "error", err)
		return apperror.Internal("Failed to send notification", err)
	}

	log.Info("notification sent", "connections", len(ids))
	return nil
}
