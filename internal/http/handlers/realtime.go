package handlers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/vizflow-backend/internal/http/response"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime"
)

// RealtimeHandler streams a user's pipeline notifications. Each connection
// gets its own hub client on the user's channel, so several tabs of one
// user all receive every message.
type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	upgrader websocket.Upgrader
}

// NewRealtimeHandler accepts websocket upgrades from origins; empty allows
// any origin.
func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, origins []string) *RealtimeHandler {
	h := &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 || slices.Contains(origins, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		},
	}
	return h
}

func (h *RealtimeHandler) subscribe(userID string) *realtime.SSEClient {
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	return client
}

// GET /api/realtime/stream?userId
func (h *RealtimeHandler) Stream(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	client := h.subscribe(uid)
	defer h.hub.CloseClient(client)
	h.log.Debug("SSE stream open", "user_id", uid, "clientID", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// GET /api/realtime/ws?userId
func (h *RealtimeHandler) WebSocket(c *gin.Context) {
	uid, err := userIDParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("Websocket upgrade failed", "user_id", uid, "error", err)
		return
	}
	client := h.subscribe(uid)
	defer h.hub.CloseClient(client)
	h.log.Debug("Websocket open", "user_id", uid, "clientID", client.ID)
	h.hub.ServeWS(conn, client)
}
