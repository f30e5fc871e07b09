package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/motorlist/internal/services"
	"github.com/charlesng35/motorlist/pkg/response"
)

// BatchHandler serves the internal batch job endpoints invoked by the scheduler.
type BatchHandler struct {
	svc *services.SearchBatchService
}

// NewBatchHandler constructs the handler for the internal batch job routes.
func NewBatchHandler(svc *services.SearchBatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// POST /internal/batch/create
func (h *BatchHandler) Create(c *gin.Context) {
	summary, err := h.svc.CreateBatch(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// POST /internal/batch/check
func (h *BatchHandler) Check(c *gin.Context) {
	summary, err := h.svc.CheckBatch(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}
