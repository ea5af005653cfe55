// Package analysis owns the analysis job lifecycle: creation, background processing,
// org-scoped lookup and cursor-paginated listing.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/analyzr/internal/analyzer"
	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/internal/jobstore"
	"github.com/kiranshivaraju/analyzr/internal/telemetry"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// CodePanic is recorded when background processing panics.
const CodePanic = "PANIC"

var (
	ErrShuttingDown      = errors.New("analysis service is shutting down")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Notifier delivers job outcomes to the owning organization.
type Notifier interface {
	NotifyComplete(ctx context.Context, orgID, jobID string, result models.AnalysisResult) error
	NotifyFailed(ctx context.Context, orgID, jobID, message string) error
}

// CreateRequest is the caller-supplied part of a new job.
type CreateRequest struct {
	Context models.AnalysisContext
	Options *models.AnalysisOptions
}

// Service orchestrates analysis jobs. Each created job gets exactly one
// background goroutine, tracked so Shutdown can drain them.
type Service struct {
	store    jobstore.Store
	keys     jobstore.KeyLister
	analyzer models.Analyzer
	notifier Notifier
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store jobstore.Store, keys jobstore.KeyLister, a models.Analyzer, n Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		keys:     keys,
		analyzer: a,
		notifier: n,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAnalysis persists a pending job and schedules its processing. It never
// waits for the analysis itself.
func (s *Service) CreateAnalysis(ctx context.Context, orgID string, req CreateRequest) (*models.Job, error) {
	// Tracked under the lock, persisted outside it.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, apperror.Internal("Failed to create analysis", ErrShuttingDown)
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	now := s.now().UTC()
	job := &models.Job{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Status:    models.JobStatusPending,
		Context:   req.Context,
		Options:   req.Options,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Set(ctx, job.ID, job); err != nil {
		s.wg.Done()
		s.logger.Error("failed to create analysis", "org_id", orgID, "error", err)
		return nil, apperror.Internal("Failed to create analysis", err)
	}
	s.logger.Info("analysis created", "job_id", job.ID, "org_id", orgID)
	s.metrics.JobCreated()

	go s.process(*job)

	return job, nil
}

// GetAnalysis returns the job only if it belongs to orgID. Missing and foreign
// jobs are both reported as not found.
func (s *Service) GetAnalysis(ctx context.Context, orgID, id string) (*models.Job, error) {
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, jobstore.ErrNotFound) {
		return nil, apperror.NotFound("Analysis", id)
	}
	if err != nil {
		s.logger.Error("failed to get analysis", "job_id", id, "error", err)
		return nil, apperror.Internal("Failed to get analysis", err)
	}
	if job.OrgID != orgID {
		return nil, apperror.NotFound("Analysis", id)
	}
	return job, nil
}

// InFlight returns the number of jobs currently being processed.
func (s *Service) InFlight() int64 {
	return s.inFlight.Load()
}

// Shutdown stops accepting new jobs and waits for in-flight processing until ctx
// is done. Jobs still running after that are abandoned in their current state.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("analysis service drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("abandoning in-flight analyses", "count", s.inFlight.Load())
		return ctx.Err()
	}
}

func (s *Service) process(job models.Job) {
	defer s.wg.Done()
	s.inFlight.Add(1)
	s.metrics.JobStarted()
	defer func() {
		s.inFlight.Add(-1)
		s.metrics.JobFinished()
	}()

	ctx := context.Background()
	log := s.logger.With("job_id", job.ID, "org_id", job.OrgID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in analysis processing", "panic", r, "stack", string(debug.Stack()))
			s.fail(ctx, log, &job, fmt.Sprintf("panic: %v", r), CodePanic)
		}
	}()

	if err := s.run(ctx, log, &job); err != nil {
		log.Error("analysis processing failed", "error", err)
	}
}

func (s *Service) run(ctx context.Context, log *slog.Logger, job *models.Job) error {
	if _, err := s.updateStatus(ctx, job.ID, models.JobStatusProcessing); err != nil {
		s.fail(ctx, log, job, err.Error(), analyzer.CodeAnalysisFailed)
		return err
	}

	result, err := s.analyzer.Analyze(ctx, job.Context)
	if err != nil {
		s.fail(ctx, log, job, err.Error(), analyzer.ErrorCode(err))
		return fmt.Errorf("analyze: %w", err)
	}

	if _, err := s.updateResult(ctx, job.ID, result); err != nil {
		s.fail(ctx, log, job, err.Error(), analyzer.CodeAnalysisFailed)
		return err
	}
	s.metrics.JobCompleted()
	log.Info("analysis completed", "confidence", result.Confidence)

	if job.NotifyOnCompletion() {
		if err := s.notifier.NotifyComplete(ctx, job.OrgID, job.ID, result); err != nil {
			log.Warn("completion notification failed", "error", err)
		}
	}
	return nil
}

// fail records the failure on the job and notifies if requested. When the job
// cannot be moved to failed (for example it already completed) nothing is
// counted or sent.
func (s *Service) fail(ctx context.Context, log *slog.Logger, job *models.Job, message, code string) {
	jobErr := models.JobError{Message: message, Code: code, Timestamp: s.now().UTC()}
	if _, err := s.updateError(ctx, job.ID, jobErr); err != nil {
		log.Error("failed to record analysis failure", "code", code, "error", err)
		return
	}
	s.metrics.JobFailed(code)

	if job.NotifyOnCompletion() {
		if err := s.notifier.NotifyFailed(ctx, job.OrgID, job.ID, message); err != nil {
			log.Warn("failure notification failed", "error", err)
		}
	}
}
