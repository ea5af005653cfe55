package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/internal/jobstore"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// The helpers below are read-modify-write against the job store and are not
// atomic: concurrent updates to one job are last-write-wins.

func (s *Service) updateStatus(ctx context.Context, id string, status models.JobStatus) (*models.Job, error) {
	return s.update(ctx, id, status, nil)
}

func (s *Service) updateResult(ctx context.Context, id string, result models.AnalysisResult) (*models.Job, error) {
	return s.update(ctx, id, models.JobStatusCompleted, func(j *models.Job) {
		j.Result = &result
		j.Error = nil
	})
}

func (s *Service) updateError(ctx context.Context, id string, jobErr models.JobError) (*models.Job, error) {
	return s.update(ctx, id, models.JobStatusFailed, func(j *models.Job) {
		j.Error = &jobErr
		j.Result = nil
	})
}

func (s *Service) update(ctx context.Context, id string, next models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, jobstore.ErrNotFound) {
		return nil, apperror.NotFound("Analysis", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}

	if !job.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}

	job.Status = next
	if mutate != nil {
		mutate(job)
	}
	if now := s.now().UTC(); now.After(job.UpdatedAt) {
		job.UpdatedAt = now
	}

	if err := s.store.Set(ctx, id, job); err != nil {
		return nil, fmt.Errorf("write job %s: %w", id, err)
	}
	return job, nil
}
