package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// ServeHTTP upgrades to a WebSocket and streams toasts as JSON objects until
// the client disconnects or the hub stops. Clients never send data; anything
// they do send is discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("notify: websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.Subscribe("ws-"+uuid.NewString(), 0)
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("notify: websocket subscribed", zap.String("subscriber", sub.Name))

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, t); err != nil {
				if websocket.CloseStatus(err) == -1 {
					h.logger.Debug("notify: websocket write", zap.String("subscriber", sub.Name), zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, t Toast) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, t)
}
