package handler

import (
	"context"

	"github.com/campaignlens/backend/internal/application/enrichment"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// defaultAutoQueueLimit caps one auto-queue request when no limit is given.
const defaultAutoQueueLimit = 200

// EnrichmentQueue manages the profile enrichment queue.
type EnrichmentQueue interface {
	QueueForEnrichment(ctx context.Context, personIDs []uuid.UUID, priority int) (int, error)
	AutoQueueHighValuePeople(ctx context.Context, limit int) (int, error)
	ProcessQueue(ctx context.Context) (*enrichment.ProcessResult, error)
	Stats(ctx context.Context) (*enrichment.Stats, error)
}

// EnrichmentHandler exposes the enrichment queue.
type EnrichmentHandler struct {
	BaseHandler
	queue EnrichmentQueue
}

// NewEnrichmentHandler creates an EnrichmentHandler
func NewEnrichmentHandler(queue EnrichmentQueue) *EnrichmentHandler {
	return &EnrichmentHandler{queue: queue}
}

// Stats handles GET /api/v1/enrichment/stats.
func (h *EnrichmentHandler) Stats(c *gin.Context) {
	st, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, st)
}

// Queue handles POST /api/v1/enrichment/queue. Either explicit person ids
// or "auto": true must be given.
func (h *EnrichmentHandler) Queue(c *gin.Context) {
	var req dto.QueueEnrichmentRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if req.Auto {
		limit := req.Limit
		if limit == 0 {
			limit = defaultAutoQueueLimit
		}
		n, err := h.queue.AutoQueueHighValuePeople(ctx, limit)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, dto.QueueEnrichmentResponse{Queued: n})
		return
	}

	if len(req.PersonIDs) == 0 {
		h.BadRequest(c, "person_ids is required unless auto is set")
		return
	}
	ids := make([]uuid.UUID, 0, len(req.PersonIDs))
	for _, raw := range req.PersonIDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	n, err := h.queue.QueueForEnrichment(ctx, ids, req.Priority)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.QueueEnrichmentResponse{Queued: n})
}

// Process handles POST /api/v1/enrichment/process, running one batch now.
func (h *EnrichmentHandler) Process(c *gin.Context) {
	result, err := h.queue.ProcessQueue(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
