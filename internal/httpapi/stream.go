package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cloudpico-probe/internal/utils"
)

var upgrader = websocket.Upgrader{
	// Read-only status feed; any origin may watch.
	CheckOrigin: func(*http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// handleStream pushes the status JSON immediately and then once per interval
// until the client goes away or the api context ends.
func (a *api) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					a.logger.Debug("websocket read", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			utils.DebugErr(a.logger, "websocket write deadline", err)
			return
		}
		if err := conn.WriteJSON(newStatusBody(a.status.Snapshot())); err != nil {
			a.logger.Debug("websocket write", "error", err)
			return
		}

		select {
		case <-a.ctx.Done():
			err := conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			utils.DebugErr(a.logger, "websocket close frame", err)
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}
