package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/chat-widget/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamHandler pushes chat snapshots to the widget over a WebSocket.
type StreamHandler struct {
	*Handler
}

// NewStreamHandler creates a new snapshot stream handler.
func NewStreamHandler(base *Handler) *StreamHandler {
	return &StreamHandler{Handler: base}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctrl, deviceID, ok := h.session(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	slog.Info("Chat stream connection request", "device_id", deviceID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	// The widget only listens; reads are drained so control frames are handled.
	ctx := ws.CloseRead(r.Context())

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := h.write(ctx, ws, newChatView(ctrl.Snapshot())); err != nil {
		slog.Debug("Failed to send initial snapshot", "error", err, "device_id", deviceID)
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(ctx, ws, newChatView(snap)); err != nil {
				slog.Debug("Chat stream write failed", "error", err, "device_id", deviceID)
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("Chat stream ping failed", "error", err, "device_id", deviceID)
				return
			}
		case <-ctx.Done():
			slog.Info("Chat stream ended", "device_id", deviceID)
			return
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, ws *websocket.Conn, v chatView) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
