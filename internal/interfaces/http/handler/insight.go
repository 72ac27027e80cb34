package handler

import (
	"context"

	"github.com/campaignlens/backend/internal/application/insight"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InsightSource generates the insight report of a stored post.
type InsightSource interface {
	ForPost(ctx context.Context, postID uuid.UUID) (*insight.Report, error)
}

// InsightHandler serves post insight reports.
type InsightHandler struct {
	BaseHandler
	insights InsightSource
}

// NewInsightHandler creates an InsightHandler
func NewInsightHandler(insights InsightSource) *InsightHandler {
	return &InsightHandler{insights: insights}
}

// ForPost handles GET /api/v1/posts/:id/insights.
func (h *InsightHandler) ForPost(c *gin.Context) {
	postID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	report, err := h.insights.ForPost(c.Request.Context(), postID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
