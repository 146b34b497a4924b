package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepad/tilepad-server/pkg/hub"
	"github.com/tilepad/tilepad-server/pkg/hub/platform"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
)

type routerHarness struct {
	router  http.Handler
	hub     *hub.Hub
	plugins string
	fonts   string
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	pluginsDir := t.TempDir()
	fontsDir := t.TempDir()

	h, err := hub.New(&hub.Options{
		Database:   &store.Config{Path: ":memory:"},
		Platform:   platform.Noop{},
		PluginDirs: []string{pluginsDir},
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	router := NewRouter(Config{
		IconsDir:   t.TempDir(),
		UploadsDir: t.TempDir(),
		FontsDir:   fontsDir,
	}, h)
	return &routerHarness{router: router, hub: h, plugins: pluginsDir, fonts: fontsDir}
}

func (h *routerHarness) do(method, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *routerHarness) installPlugin(t *testing.T, id string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(h.plugins, strings.ReplaceAll(id, ".", "-"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := `{"plugin": {"id": "` + id + `", "name": "Test", "version": "1.0.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	h.hub.Plugins().Reload()
}

func TestLoopbackGuard(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(http.MethodGet, "/plugins/ws", "192.168.1.5:1234")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/dev/reload_plugins", "10.0.0.8:40000")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// IPv6 loopback passes the guard; the upgrader then rejects the plain
	// GET for missing upgrade headers.
	rec = h.do(http.MethodGet, "/plugins/ws", "[::1]:40000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadPluginsRequiresDeveloperMode(t *testing.T) {
	h := newRouterHarness(t)
	ctx := context.Background()

	rec := h.do(http.MethodPost, "/dev/reload_plugins", "127.0.0.1:5555")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "developer mode is disabled")

	settings, err := h.hub.Store().GetSettings(ctx)
	require.NoError(t, err)
	settings.DeveloperMode = true
	require.NoError(t, h.hub.Store().UpdateSettings(ctx, settings))

	rec = h.do(http.MethodPost, "/dev/reload_plugins", "127.0.0.1:5555")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServerDetails(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(http.MethodGet, "/server/details", "192.168.1.5:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var details map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, Identifier, details["identifier"])
	assert.NotEmpty(t, details["hostname"])
}

func TestPluginAssetInjectsBridge(t *testing.T) {
	h := newRouterHarness(t)
	h.installPlugin(t, "com.example.obs", map[string]string{
		"inspector.html": "<html><head><title>x</title></head><body></body></html>",
		"data.json":      `{"k": 1}`,
	})

	rec := h.do(http.MethodGet, "/plugins/com.example.obs/assets/inspector.html", "192.168.1.5:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "window.tilepad")
	headEnd := strings.Index(body, "<head>") + len("<head>")
	assert.True(t, strings.HasPrefix(body[headEnd:], "<script>"), "bridge goes right after <head>")

	// Non-HTML files are served untouched.
	rec = h.do(http.MethodGet, "/plugins/com.example.obs/assets/data.json", "192.168.1.5:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"k": 1}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/plugins/com.example.missing/assets/inspector.html", "192.168.1.5:1234")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInjectBridge(t *testing.T) {
	withHead := injectBridge([]byte("<html><head><title>t</title></head></html>"))
	assert.Contains(t, string(withHead), "<head><script>")

	upperHead := injectBridge([]byte("<HTML><HEAD></HEAD></HTML>"))
	assert.Contains(t, string(upperHead), "<HEAD><script>")

	noHead := injectBridge([]byte("<p>hi</p>"))
	assert.True(t, strings.HasPrefix(string(noHead), "<script>"))
	assert.True(t, strings.HasSuffix(string(noHead), "<p>hi</p>"))
}

func TestSecurePath(t *testing.T) {
	root := string(filepath.Separator) + filepath.Join("srv", "assets")

	cases := map[string]string{
		"icon.png":             filepath.Join(root, "icon.png"),
		"sub/icon.png":         filepath.Join(root, "sub", "icon.png"),
		"../../../etc/passwd":  filepath.Join(root, "etc", "passwd"),
		"..":                   root,
		"sub/../../secret.txt": filepath.Join(root, "secret.txt"),
	}
	for requested, want := range cases {
		assert.Equal(t, want, securePath(root, requested), requested)
	}
}

func TestFontStyleSelection(t *testing.T) {
	h := newRouterHarness(t)
	family := filepath.Join(h.fonts, "roboto")
	require.NoError(t, os.MkdirAll(family, 0o755))
	for _, style := range []string{"regular", "bold", "italic", "bold-italic"} {
		require.NoError(t, os.WriteFile(filepath.Join(family, style+".ttf"), []byte(style), 0o644))
	}

	cases := map[string]string{
		"/fonts/roboto":             "regular",
		"/fonts/roboto?bold":        "bold",
		"/fonts/roboto?italic":      "italic",
		"/fonts/roboto?bold&italic": "bold-italic",
	}
	for target, want := range cases {
		rec := h.do(http.MethodGet, target, "192.168.1.5:1234")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, want, rec.Body.String(), target)
	}

	rec := h.do(http.MethodGet, "/fonts/missing", "192.168.1.5:1234")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRouteIsOptIn(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(http.MethodGet, "/metrics", "127.0.0.1:5555")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
