package server

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub"
)

// NewRouter creates the chi router for the hub listener.
//
// Routes:
//   - GET /devices/ws - device WebSocket session
//   - GET /plugins/ws - plugin WebSocket session (loopback only)
//   - GET /plugins/{plugin_id}/assets/* - plugin files, HTML gets the inspector bridge injected
//   - GET /icons/{pack_id}/assets/* - icon pack files
//   - GET /uploaded-icons/* - user-uploaded tile icons
//   - GET /fonts/{family} - font file matching ?bold&italic style flags
//   - GET /server/details - LAN discovery identity
//   - POST /dev/reload_plugins - plugin reload (developer mode, loopback only)
//   - GET /metrics - Prometheus metrics (when enabled)
func NewRouter(config Config, h *hub.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	ws := newSocketHandler(h)
	assets := newAssetHandler(config, h)

	r.Get("/devices/ws", ws.Device)
	r.Group(func(r chi.Router) {
		r.Use(requireLoopback)
		r.Get("/plugins/ws", ws.Plugin)
		r.Post("/dev/reload_plugins", newDevHandler(h).ReloadPlugins)
	})

	r.Get("/plugins/{plugin_id}/assets/*", assets.PluginAsset)
	r.Get("/icons/{pack_id}/assets/*", assets.IconAsset)
	r.Get("/uploaded-icons/*", assets.UploadedIcon)
	r.Get("/fonts/{family}", assets.Font)

	r.Get("/server/details", serverDetails)

	if config.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// requireLoopback rejects requests whose TCP peer is not a loopback
// address. The raw socket peer is checked, never forwarded-for headers;
// anything on the wire can forge those.
func requireLoopback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			logger.Warn("rejecting non-loopback request", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs requests using the internal logger. WebSocket
// upgrades are logged only at start; they do not complete until the
// session ends.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
