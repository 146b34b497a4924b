package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub"
)

// inspectorBridge is injected into the <head> of every plugin HTML file so
// inspector and display views can talk to the hub without bundling a
// client library.
const inspectorBridge = `<script>
(function () {
  var socket = new WebSocket("ws://" + location.host + "/plugins/ws");
  var queue = [];
  socket.addEventListener("open", function () {
    queue.forEach(function (m) { socket.send(m); });
    queue = [];
  });
  socket.addEventListener("message", function (ev) {
    window.dispatchEvent(new CustomEvent("tilepad:message", { detail: JSON.parse(ev.data) }));
  });
  window.tilepad = {
    send: function (msg) {
      var data = JSON.stringify(msg);
      if (socket.readyState === WebSocket.OPEN) { socket.send(data); } else { queue.push(data); }
    }
  };
})();
</script>
<style>
  :root { color-scheme: dark; }
  html, body { margin: 0; background: transparent; }
</style>
`

// assetHandler serves plugin, icon-pack, uploaded-icon and font files.
type assetHandler struct {
	hub        *hub.Hub
	iconsDir   string
	uploadsDir string
	fontsDir   string
}

func newAssetHandler(config Config, h *hub.Hub) *assetHandler {
	return &assetHandler{
		hub:        h,
		iconsDir:   config.IconsDir,
		uploadsDir: config.UploadsDir,
		fontsDir:   config.FontsDir,
	}
}

// securePath resolves a requested path under root, collapsing any ".."
// segments so the result can never escape root.
func securePath(root, requested string) string {
	return filepath.Join(root, filepath.Clean("/"+requested))
}

// PluginAsset serves a file from the plugin's own directory. HTML files
// get the inspector bridge injected into their <head>.
func (h *assetHandler) PluginAsset(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "plugin_id")
	plugin, ok := h.hub.Plugins().Plugin(pluginID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	path := securePath(plugin.Dir, chi.URLParam(r, "*"))
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".html" && ext != ".htm" {
		http.ServeFile(w, r, path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		logger.Error("cannot read plugin asset", "path", path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(injectBridge(data))
}

// injectBridge places the inspector bridge right after the opening <head>
// tag, or prepends it when the document has none.
func injectBridge(doc []byte) []byte {
	lower := strings.ToLower(string(doc))
	idx := strings.Index(lower, "<head>")
	if idx < 0 {
		return append([]byte(inspectorBridge), doc...)
	}
	insert := idx + len("<head>")
	out := make([]byte, 0, len(doc)+len(inspectorBridge))
	out = append(out, doc[:insert]...)
	out = append(out, inspectorBridge...)
	out = append(out, doc[insert:]...)
	return out
}

// IconAsset serves a file from an installed icon pack.
func (h *assetHandler) IconAsset(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "pack_id")
	packDir := securePath(h.iconsDir, packID)
	http.ServeFile(w, r, securePath(packDir, chi.URLParam(r, "*")))
}

// UploadedIcon serves a user-uploaded tile icon.
func (h *assetHandler) UploadedIcon(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, securePath(h.uploadsDir, chi.URLParam(r, "*")))
}

// Font serves the font file for a family, picking the variant matching
// the bold and italic query flags.
func (h *assetHandler) Font(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")

	style := "regular"
	bold := r.URL.Query().Has("bold")
	italic := r.URL.Query().Has("italic")
	switch {
	case bold && italic:
		style = "bold-italic"
	case bold:
		style = "bold"
	case italic:
		style = "italic"
	}

	familyDir := securePath(h.fontsDir, family)
	http.ServeFile(w, r, filepath.Join(familyDir, style+".ttf"))
}
