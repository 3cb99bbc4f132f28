package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/http/response"
	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/repos"
)

type VisualizationHandler struct {
	log     *logger.Logger
	visuals repos.VisualizationRepo
}

func NewVisualizationHandler(log *logger.Logger, visuals repos.VisualizationRepo) *VisualizationHandler {
	return &VisualizationHandler{log: log.With("handler", "VisualizationHandler"), visuals: visuals}
}

// GET /api/visualizations?userId&limit
// A store failure still answers with an empty list so dashboards degrade.
func (h *VisualizationHandler) List(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	recs, err := h.visuals.ListByUser(c.Request.Context(), uid, limitParam(c, 10))
	if err != nil {
		h.log.Warn("Visualization read failed", "user_id", uid, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"visualizations": []domain.VisualizationRecord{},
			"error":          response.APIError{Message: err.Error(), Code: "store_unavailable"},
		})
		return
	}
	response.RespondOK(c, gin.H{"visualizations": recs})
}

// GET /api/visualizations/partial?userId&step
func (h *VisualizationHandler) Partial(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	step, err := strconv.Atoi(strings.TrimSpace(c.Query("step")))
	if err != nil || step < 1 {
		response.RespondError(c, http.StatusBadRequest, "invalid_step", fmt.Errorf("step must be a positive integer"))
		return
	}
	rec, err := h.visuals.GetPartial(c.Request.Context(), uid, step)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		response.RespondError(c, http.StatusNotFound, "partial_not_found", err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	response.RespondOK(c, rec)
}
