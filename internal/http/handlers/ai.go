package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/ai"
)

type AIHealthChecker interface {
	Health(ctx context.Context) ai.Status
}

type AIHandler struct {
	client AIHealthChecker
}

func NewAIHandler(client AIHealthChecker) *AIHandler {
	return &AIHandler{client: client}
}

// Health reports upstream model availability. Always 200: "the model is
// down" is a successful answer to this question, and the fallback keeps
// assessments working either way.
func (h *AIHandler) Health(ctx *gin.Context) {
	status := h.client.Health(ctx.Request.Context())

	RespondData(ctx, http.StatusOK, status)
}
