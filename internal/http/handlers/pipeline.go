package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/http/response"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// PipelineService is the part of the coordinator the HTTP layer drives.
type PipelineService interface {
	SubmitEvent(ctx context.Context, userID string, eventType domain.EventType, eventData json.RawMessage) (string, error)
	Cancel(ctx context.Context, userID string) (int, error)
	Counts(ctx context.Context) (map[domain.Stage]queue.Counts, error)
}

type PipelineHandler struct {
	log      *logger.Logger
	pipeline PipelineService
}

func NewPipelineHandler(log *logger.Logger, pipeline PipelineService) *PipelineHandler {
	return &PipelineHandler{log: log.With("handler", "PipelineHandler"), pipeline: pipeline}
}

type submitEventRequest struct {
	UserID    string          `json:"userId"`
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

// POST /api/pipeline/events
func (h *PipelineHandler) SubmitEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
	var req submitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	jobID, err := h.pipeline.SubmitEvent(c.Request.Context(), req.UserID, domain.EventType(req.EventType), req.EventData)
	if err != nil {
		response.RespondErr(c, "event_submit_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"success": true,
		"message": "Event added to pipeline",
		"jobId":   jobID,
	})
}

type cancelRequest struct {
	UserID string `json:"userId"`
}

// POST /api/visualizations/cancel
func (h *PipelineHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("userId is required"))
		return
	}
	n, err := h.pipeline.Cancel(c.Request.Context(), req.UserID)
	if err != nil {
		response.RespondErr(c, "cancel_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"message":     fmt.Sprintf("Successfully cancelled %d jobs", n),
		"cancelCount": n,
	})
}

// GET /api/queues
func (h *PipelineHandler) Queues(c *gin.Context) {
	counts, err := h.pipeline.Counts(c.Request.Context())
	if err != nil {
		h.log.Warn("Queue counts unavailable", "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	out := make(map[string]queue.Counts, len(counts))
	for s, n := range counts {
		out[s.String()] = n
	}
	response.RespondOK(c, gin.H{"queues": out})
}
