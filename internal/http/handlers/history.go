package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/http/response"
	"github.com/yungbote/vizflow-backend/internal/repos"
)

// HistoryHandler exposes the per-user lists written along the pipeline.
type HistoryHandler struct {
	queries repos.QueryRepo
	results repos.ResultRepo
	events  repos.UserEventRepo
}

func NewHistoryHandler(queries repos.QueryRepo, results repos.ResultRepo, events repos.UserEventRepo) *HistoryHandler {
	return &HistoryHandler{queries: queries, results: results, events: events}
}

// GET /api/queries?userId&limit
func (h *HistoryHandler) Queries(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	out, err := h.queries.ListByUser(c.Request.Context(), uid, limitParam(c, 20))
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"queries": out})
}

// GET /api/results?userId&limit
func (h *HistoryHandler) Results(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	out, err := h.results.ListByUser(c.Request.Context(), uid, limitParam(c, 20))
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"results": out})
}

// GET /api/events?userId&limit
func (h *HistoryHandler) Events(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	out, err := h.events.ListByUser(c.Request.Context(), uid, limitParam(c, 50))
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"events": out})
}
