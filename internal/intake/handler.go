package intake

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps how much of a delivery we read. The platform's
// payloads are well under this; anything larger is truncated, not rejected.
const maxWebhookBody = 4 << 20

// Handler handles webhook ingestion HTTP requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new intake handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleCallCompletion ingests one call-completion delivery.
// POST /api/v1/webhook/call-completion
//
// Always returns 200: the platform retries aggressively on non-200 and a
// retry storm is worse than a lost delivery, which the reconciliation sweep
// repairs later.
func (h *Handler) HandleCallCompletion(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusOK, IngestResult{Received: true, Error: "unreadable body"})
		return
	}

	result := h.service.Ingest(c.Request.Context(), body)
	c.JSON(http.StatusOK, result)

	if result.Stored {
		// Detached from the request: processing outlives the response and
		// its failures surface only in the event row.
		go func(conversationID string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			h.service.DispatchProcessing(ctx, conversationID)
		}(result.ConversationID)
	}
}
