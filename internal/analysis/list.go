package analysis

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/internal/jobstore"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions filters and pages ListAnalyses. Cursor is the created_at of the
// last item of the previous page, as returned in ListResult.NextCursor.
type ListOptions struct {
	Status models.JobStatus
	Limit  int
	Cursor string
}

type ListResult struct {
	Items      []*models.Job
	NextCursor string
}

// ParseCursor decodes a listing cursor.
func ParseCursor(cursor string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, cursor)
}

// FormatCursor encodes t as a listing cursor.
func FormatCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ListAnalyses scans every job in the store, keeps the org's jobs matching the
// status filter, and returns them newest first. Cost is linear in the total
// number of stored jobs.
func (s *Service) ListAnalyses(ctx context.Context, orgID string, opts ListOptions) (*ListResult, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, apperror.Validation("Invalid status filter", map[string]string{"status": string(opts.Status)})
	}

	var cursor time.Time
	if opts.Cursor != "" {
		c, err := ParseCursor(opts.Cursor)
		if err != nil {
			return nil, apperror.Validation("Invalid cursor", map[string]string{"cursor": opts.Cursor})
		}
		cursor = c
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	ids, err := s.keys.Keys(ctx)
	if err != nil {
		s.logger.Error("failed to list analyses", "org_id", orgID, "error", err)
		return nil, apperror.Internal("Failed to list analyses", err)
	}

	var matches []*models.Job
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		// Key listings may repeat ids (Redis SCAN does during a rehash).
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		job, err := s.store.Get(ctx, id)
		if errors.Is(err, jobstore.ErrNotFound) {
			// Expired between the key scan and the read.
			continue
		}
		if err != nil {
			s.logger.Error("failed to list analyses", "org_id", orgID, "job_id", id, "error", err)
			return nil, apperror.Internal("Failed to list analyses", err)
		}
		if job.OrgID != orgID || (opts.Status != "" && job.Status != opts.Status) {
			continue
		}
		if !cursor.IsZero() && !job.CreatedAt.Before(cursor) {
			continue
		}
		matches = append(matches, job)
	}

	slices.SortFunc(matches, func(a, b *models.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	result := &ListResult{Items: matches[:min(limit, len(matches))]}
	if len(matches) > limit {
		result.NextCursor = FormatCursor(result.Items[len(result.Items)-1].CreatedAt)
	}
	if result.Items == nil {
		result.Items = []*models.Job{}
	}

	s.logger.Info("listed analyses",
		"org_id", orgID, "status", opts.Status, "limit", limit,
		"count", len(result.Items), "has_more", result.NextCursor != "")

	return result, nil
}
