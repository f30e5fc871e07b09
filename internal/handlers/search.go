package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/motorlist/internal/middleware"
	"github.com/charlesng35/motorlist/internal/services"
	"github.com/charlesng35/motorlist/pkg/response"
)

// SearchHandler records marketplace search queries for batch processing.
type SearchHandler struct {
	svc *services.SearchBatchService
}

func NewSearchHandler(svc *services.SearchBatchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type logSearchRequest struct {
	Query   string         `json:"query" validate:"required,notblank,max=500"`
	Filters map[string]any `json:"filters"`
}

// POST /api/search/logs
func (h *SearchHandler) Log(c *gin.Context) {
	var req logSearchRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entry, err := h.svc.LogSearch(requestContext(c), c.GetString(middleware.CtxUserIDKey), req.Query, req.Filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, entry)
}

// GET /api/search/logs/:id
func (h *SearchHandler) Get(c *gin.Context) {
	entry, err := h.svc.GetSearchLog(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entry)
}
