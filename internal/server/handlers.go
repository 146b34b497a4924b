package server

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub"
)

// serverDetails answers LAN discovery probes with the hub's identity.
func serverDetails(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"identifier": Identifier,
		"hostname":   hostname,
	})
}

// devHandler serves the developer-mode endpoints.
type devHandler struct {
	hub *hub.Hub
}

func newDevHandler(h *hub.Hub) *devHandler {
	return &devHandler{hub: h}
}

// ReloadPlugins rescans the plugin directories. Requires the persisted
// developer-mode setting in addition to the router's loopback check.
func (h *devHandler) ReloadPlugins(w http.ResponseWriter, r *http.Request) {
	settings, err := h.hub.Store().GetSettings(r.Context())
	if err != nil {
		logger.Error("cannot load settings for plugin reload", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !settings.DeveloperMode {
		http.Error(w, "developer mode is disabled", http.StatusForbidden)
		return
	}

	h.hub.Plugins().Reload()
	w.WriteHeader(http.StatusNoContent)
}
