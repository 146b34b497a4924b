package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub"
)

// upgrader accepts any origin: devices connect from LAN hosts and plugin
// views are file:// or app-scheme pages without a meaningful Origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// socketHandler upgrades HTTP requests into hub sessions.
type socketHandler struct {
	hub *hub.Hub
}

func newSocketHandler(h *hub.Hub) *socketHandler {
	return &socketHandler{hub: h}
}

// Device upgrades a device connection and runs its session to completion.
func (h *socketHandler) Device(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("device websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.hub.Devices().HandleConnection(conn)
}

// Plugin upgrades a plugin connection and runs its session to completion.
// The router restricts this endpoint to loopback peers.
func (h *socketHandler) Plugin(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("plugin websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.hub.Plugins().HandleConnection(conn)
}
