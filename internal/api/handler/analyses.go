package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/analyzr/internal/analysis"
	mw "github.com/kiranshivaraju/analyzr/internal/api/middleware"
	"github.com/kiranshivaraju/analyzr/internal/api/response"
	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

const maxBodyBytes = 1 << 20

var (
	priorities     = []string{"low", "medium", "high"}
	analysisDepths = []string{"basic", "detailed", "comprehensive"}
	metricKinds    = []string{"performance", "quality", "coverage", "security"}
)

// AnalysisService defines the orchestrator operations the handlers depend on.
type AnalysisService interface {
	CreateAnalysis(ctx context.Context, orgID string, req analysis.CreateRequest) (*models.Job, error)
	GetAnalysis(ctx context.Context, orgID, id string) (*models.Job, error)
	ListAnalyses(ctx context.Context, orgID string, opts analysis.ListOptions) (*analysis.ListResult, error)
}

type createAnalysisRequest struct {
	Context *models.AnalysisContext `json:"context"`
	Options *models.AnalysisOptions `json:"options"`
}

// NewCreateAnalysisHandler returns an http.HandlerFunc for POST /api/v1/analyses.
func NewCreateAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r)
		if !ok {
			response.FromError(w, apperror.Authorization("Missing caller identity", nil))
			return
		}

		var req createAnalysisRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			response.FromError(w, apperror.Validation("Invalid JSON body", nil))
			return
		}

		if problems := validateCreate(&req); len(problems) > 0 {
			response.FromError(w, apperror.Validation("Invalid analysis request", problems))
			return
		}

		job, err := svc.CreateAnalysis(r.Context(), claims.OrgID, analysis.CreateRequest{
			Context: *req.Context,
			Options: withDefaults(req.Options),
		})
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.Accepted(w, job)
	}
}

// NewGetAnalysisHandler returns an http.HandlerFunc for GET /api/v1/analyses/{analysisID}.
func NewGetAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r)
		if !ok {
			response.FromError(w, apperror.Authorization("Missing caller identity", nil))
			return
		}

		job, err := svc.GetAnalysis(r.Context(), claims.OrgID, chi.URLParam(r, "analysisID"))
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.JSON(w, job)
	}
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /api/v1/analyses.
func NewListAnalysesHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r)
		if !ok {
			response.FromError(w, apperror.Authorization("Missing caller identity", nil))
			return
		}

		q := r.URL.Query()
		limit := analysis.DefaultListLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > analysis.MaxListLimit {
				response.FromError(w, apperror.Validation("limit must be an integer between 1 and 100",
					map[string]string{"limit": raw}))
				return
			}
			limit = n
		}

		result, err := svc.ListAnalyses(r.Context(), claims.OrgID, analysis.ListOptions{
			Status: models.JobStatus(q.Get("status")),
			Limit:  limit,
			Cursor: q.Get("cursor"),
		})
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.Collection(w, result.Items, response.CursorMeta{
			Limit:      limit,
			NextCursor: result.NextCursor,
		})
	}
}

func validateCreate(req *createAnalysisRequest) map[string]string {
	problems := map[string]string{}

	if req.Context == nil {
		problems["context"] = "is required"
		return problems
	}
	if req.Context.ProjectID == "" {
		problems["context.project_id"] = "is required"
	}
	if req.Context.TestID == "" {
		problems["context.test_id"] = "is required"
	}

	if opts := req.Options; opts != nil {
		if opts.Priority != "" && !slices.Contains(priorities, opts.Priority) {
			problems["options.priority"] = "must be one of low, medium, high"
		}
		if opts.AnalysisDepth != "" && !slices.Contains(analysisDepths, opts.AnalysisDepth) {
			problems["options.analysis_depth"] = "must be one of basic, detailed, comprehensive"
		}
		for _, m := range opts.IncludeMetrics {
			if !slices.Contains(metricKinds, m) {
				problems["options.include_metrics"] = "must contain only performance, quality, coverage, security"
				break
			}
		}
	}

	return problems
}

func withDefaults(opts *models.AnalysisOptions) *models.AnalysisOptions {
	out := models.AnalysisOptions{Priority: "medium", AnalysisDepth: "detailed"}
	if opts != nil {
		out.NotifyOnCompletion = opts.NotifyOnCompletion
		out.IncludeMetrics = opts.IncludeMetrics
		if opts.Priority != "" {
			out.Priority = opts.Priority
		}
		if opts.AnalysisDepth != "" {
			out.AnalysisDepth = opts.AnalysisDepth
		}
	}
	return &out
}
