package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/campaignlens/backend/internal/application/analysis"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostAnalyzer runs and tracks post analyses.
type PostAnalyzer interface {
	AnalyzePost(ctx context.Context, rawURL string, opts analysis.Options) (*analysis.Response, error)
	Status(ctx context.Context, analysisID string) (*analysis.ProcessingStatus, error)
	Register(ctx context.Context, analysisID, rawURL string) error
}

// AnalysisHandler starts post analyses and answers status polls.
type AnalysisHandler struct {
	BaseHandler
	analyzer PostAnalyzer
	logger   *zap.Logger
	inflight sync.WaitGroup
}

// NewAnalysisHandler creates an AnalysisHandler
func NewAnalysisHandler(analyzer PostAnalyzer, log *zap.Logger) *AnalysisHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalysisHandler{analyzer: analyzer, logger: log}
}

// Analyze handles POST /api/v1/analyses.
//
// By default the analysis runs in the background and the response is 202
// with the id to poll. With "wait": true the full analysis response is
// returned; a failed analysis is still a 200 whose body says so.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzePostRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	opts := analysis.Options{AnalysisID: uuid.NewString(), ForceRefresh: req.ForceRefresh}

	if req.Wait {
		resp, err := h.analyzer.AnalyzePost(c.Request.Context(), req.PostURL, opts)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, resp)
		return
	}

	if err := h.analyzer.Register(c.Request.Context(), opts.AnalysisID, req.PostURL); err != nil {
		h.HandleError(c, err)
		return
	}

	// The request context ends with this handler; keep its values only.
	ctx := context.WithoutCancel(c.Request.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		if _, err := h.analyzer.AnalyzePost(ctx, req.PostURL, opts); err != nil {
			logger.FromContext(ctx).Error("Background analysis failed",
				zap.String("analysis_id", opts.AnalysisID), zap.Error(err))
		}
	}()

	h.Accepted(c, dto.AnalysisAccepted{
		AnalysisID: opts.AnalysisID,
		StatusURL:  "/api/v1/analyses/" + opts.AnalysisID + "/status",
	})
}

// Status handles GET /api/v1/analyses/:id/status.
func (h *AnalysisHandler) Status(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		h.BadRequest(c, "Invalid analysis id")
		return
	}

	st, err := h.analyzer.Status(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(st))
}

// Wait blocks until background analyses finish or ctx ends.
func (h *AnalysisHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.logger.Warn("Background analyses still running at shutdown")
		return ctx.Err()
	}
}
