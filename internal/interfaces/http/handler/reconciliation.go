package handler

import (
	"context"

	"github.com/campaignlens/backend/internal/application/reconciliation"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EngagementValidator validates and cleans the stored engagements of posts.
type EngagementValidator interface {
	ValidatePostEngagements(ctx context.Context, postID uuid.UUID, opts ...reconciliation.ValidateOption) (*reconciliation.Report, error)
	ValidateBatch(ctx context.Context, postIDs []uuid.UUID, opts ...reconciliation.ValidateOption) *reconciliation.BatchReport
}

// RunReader reads back scraper runs and their datasets.
type RunReader interface {
	LatestRun(ctx context.Context, postURL string) (*analytics.ScraperRun, error)
	FetchDataset(ctx context.Context, datasetID string) ([]analytics.ScrapedReaction, error)
}

// ReconciliationHandler exposes engagement validation and cleanup.
type ReconciliationHandler struct {
	BaseHandler
	validator EngagementValidator
	posts     analytics.PostRepository
	runs      RunReader
}

// NewReconciliationHandler creates a ReconciliationHandler. runs may be nil,
// in which case source comparison is unavailable.
func NewReconciliationHandler(validator EngagementValidator, posts analytics.PostRepository, runs RunReader) *ReconciliationHandler {
	return &ReconciliationHandler{validator: validator, posts: posts, runs: runs}
}

// Reconcile handles POST /api/v1/posts/:id/reconcile. The body is optional.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	postID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReconcileRequest
	if c.Request.ContentLength > 0 && !middleware.BindJSON(c, &req) {
		return
	}

	var opts []reconciliation.ValidateOption
	if req.DryRun {
		opts = append(opts, reconciliation.DryRun())
	}
	if req.CompareLatestRun {
		if h.runs == nil {
			h.ServiceUnavailable(c, "Scraper is not configured")
			return
		}
		scraped, err := h.latestDataset(c.Request.Context(), postID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		opts = append(opts, reconciliation.CompareWith(scraped))
	}

	report, err := h.validator.ValidatePostEngagements(c.Request.Context(), postID, opts...)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

func (h *ReconciliationHandler) latestDataset(ctx context.Context, postID uuid.UUID) ([]analytics.ScrapedReaction, error) {
	post, err := h.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	run, err := h.runs.LatestRun(ctx, post.URL)
	if err != nil {
		return nil, err
	}
	if run == nil || run.Status != analytics.RunSucceeded || run.DatasetID == "" {
		return nil, analytics.ErrPartialDataset.WithMessage("no finished scraper run to compare with")
	}
	return h.runs.FetchDataset(ctx, run.DatasetID)
}

// ReconcileBatch handles POST /api/v1/reconciliations/batch. Per-post
// failures are reported inside the batch report.
func (h *ReconciliationHandler) ReconcileBatch(c *gin.Context) {
	var req dto.BatchReconcileRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	ids := make([]uuid.UUID, 0, len(req.PostIDs))
	for _, raw := range req.PostIDs {
		// Already validated by the uuid binding tag.
		ids = append(ids, uuid.MustParse(raw))
	}

	var opts []reconciliation.ValidateOption
	if req.DryRun {
		opts = append(opts, reconciliation.DryRun())
	}
	h.Success(c, h.validator.ValidateBatch(c.Request.Context(), ids, opts...))
}
