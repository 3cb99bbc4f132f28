package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4 * 1024
)

// ServeWS pumps hub messages for client over conn until either side closes.
// Inbound frames are read only to observe pongs and close frames.
func (hub *SSEHub) ServeWS(conn *websocket.Conn, client *SSEClient) {
	go hub.wsReadPump(conn, client)
	hub.wsWritePump(conn, client)
}

func (hub *SSEHub) wsReadPump(conn *websocket.Conn, client *SSEClient) {
	defer hub.CloseClient(client)

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				client.Logger.Warn("Unexpected websocket close", "error", err)
			}
			return
		}
	}
}

func (hub *SSEHub) wsWritePump(conn *websocket.Conn, client *SSEClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-client.done:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg, ok := <-client.Outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				client.Logger.Warn("Websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
