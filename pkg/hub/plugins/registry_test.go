package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepad/tilepad-server/pkg/hub/events"
	"github.com/tilepad/tilepad-server/pkg/hub/models"
	"github.com/tilepad/tilepad-server/pkg/hub/platform"
	"github.com/tilepad/tilepad-server/pkg/hub/protocol"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
	"github.com/tilepad/tilepad-server/pkg/hub/tiles"
)

type noopNotifier struct{}

func (noopNotifier) BackgroundUpdateFolder(string) {}

// fakeDeviceSender records display messages and reports fixed folders.
type fakeDeviceSender struct {
	mu       sync.Mutex
	messages map[string][]protocol.DeviceServerMessage
	folders  []string
}

func (f *fakeDeviceSender) SendToDevice(deviceID string, msg protocol.DeviceServerMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string][]protocol.DeviceServerMessage)
	}
	f.messages[deviceID] = append(f.messages[deviceID], msg)
	return true
}

func (f *fakeDeviceSender) VisibleFolderIDs(context.Context) []string {
	return f.folders
}

func (f *fakeDeviceSender) sent(deviceID string) []protocol.DeviceServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.DeviceServerMessage(nil), f.messages[deviceID]...)
}

type pluginHarness struct {
	registry *Registry
	store    *store.Store
	devices  *fakeDeviceSender
	server   *httptest.Server
	dir      string
	folderID string
}

func newPluginHarness(t *testing.T, emitter events.Emitter) *pluginHarness {
	t.Helper()
	st, err := store.New(&store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	profile, err := st.GetDefaultProfile(context.Background())
	require.NoError(t, err)
	folder, err := st.GetDefaultFolder(context.Background(), profile.ID)
	require.NoError(t, err)

	dir := t.TempDir()
	installManifest(t, dir, "obs", "com.example.obs")

	bus := events.NewBus(emitter)
	if emitter != nil {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go bus.Run(ctx)
	}

	registry := NewRegistry(st, bus, tiles.NewService(st, noopNotifier{}, ""), platform.Noop{}, dir)
	devices := &fakeDeviceSender{}
	registry.SetDeviceSender(devices)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go registry.HandleConnection(conn)
	}))
	t.Cleanup(srv.Close)

	return &pluginHarness{
		registry: registry,
		store:    st,
		devices:  devices,
		server:   srv,
		dir:      dir,
		folderID: folder.ID,
	}
}

func installManifest(t *testing.T, root, dirName, pluginID string) {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := `{"plugin": {"id": "` + pluginID + `", "name": "Test", "version": "1.0.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(manifest), 0o644))
}

func (h *pluginHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *pluginHarness) register(t *testing.T, conn *websocket.Conn, pluginID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type: protocol.PluginClientRegisterPlugin, PluginID: pluginID,
	}))
	msg := readPluginMessage(t, conn)
	require.Equal(t, protocol.PluginServerRegistered, msg.Type)
	require.Equal(t, pluginID, msg.PluginID)
}

func readPluginMessage(t *testing.T, conn *websocket.Conn) protocol.PluginServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg protocol.PluginServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRegisterAndProperties(t *testing.T) {
	h := newPluginHarness(t, nil)

	conn := h.dial(t)
	h.register(t, conn, "com.example.obs")

	require.Eventually(t, func() bool {
		return len(h.registry.ConnectedPluginIDs()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type:       protocol.PluginClientSetProperties,
		Properties: models.JSONObject{"token": "abc", "volume": float64(80)},
	}))
	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type: protocol.PluginClientGetProperties,
	}))

	msg := readPluginMessage(t, conn)
	assert.Equal(t, protocol.PluginServerProperties, msg.Type)
	assert.Equal(t, "abc", msg.Properties["token"])
	assert.Equal(t, float64(80), msg.Properties["volume"])
}

func TestUnknownManifestRegistrationDropped(t *testing.T) {
	h := newPluginHarness(t, nil)

	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type: protocol.PluginClientRegisterPlugin, PluginID: "com.example.unknown",
	}))
	// No ack; the session stays unregistered and its frames are dropped.
	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type: protocol.PluginClientGetProperties,
	}))

	// The session is still alive: a valid registration now succeeds and its
	// ack is the first reply we see.
	h.register(t, conn, "com.example.obs")
	assert.Empty(t, h.devices.sent("any"))
}

func TestDuplicateRegistrationEvictsOldSession(t *testing.T) {
	h := newPluginHarness(t, nil)

	first := h.dial(t)
	h.register(t, first, "com.example.obs")

	second := h.dial(t)
	h.register(t, second, "com.example.obs")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "evicted session is closed server-side")

	assert.Equal(t, []string{"com.example.obs"}, h.registry.ConnectedPluginIDs())
}

func TestSendToDisplayStampsPluginID(t *testing.T) {
	h := newPluginHarness(t, nil)

	conn := h.dial(t)
	h.register(t, conn, "com.example.obs")

	// The frame claims another plugin's identity; the session binding wins.
	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type: protocol.PluginClientSendToDisplay,
		Ctx: &protocol.InspectorContext{
			DeviceID: "dev-1",
			PluginID: "com.example.impostor",
			TileID:   "tile-1",
		},
		Message: []byte(`{"level": 3}`),
	}))

	require.Eventually(t, func() bool {
		return len(h.devices.sent("dev-1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	msg := h.devices.sent("dev-1")[0]
	assert.Equal(t, protocol.DeviceServerRecvFromPlugin, msg.Type)
	require.NotNil(t, msg.Ctx)
	assert.Equal(t, "com.example.obs", msg.Ctx.PluginID)
	assert.JSONEq(t, `{"level": 3}`, string(msg.Message))
}

func TestSendToInspectorPublishesStampedEvent(t *testing.T) {
	type emitted struct {
		topic   string
		payload any
	}
	ch := make(chan emitted, 1)
	h := newPluginHarness(t, events.EmitterFunc(func(topic string, payload any) error {
		ch <- emitted{topic, payload}
		return nil
	}))

	conn := h.dial(t)
	h.register(t, conn, "com.example.obs")

	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type:    protocol.PluginClientSendToInspector,
		Ctx:     &protocol.InspectorContext{PluginID: "com.example.impostor", TileID: "tile-1"},
		Message: []byte(`{"hello": true}`),
	}))

	select {
	case ev := <-ch:
		assert.Equal(t, string(events.TopicPluginMessage), ev.topic)
		payload, ok := ev.payload.(InspectorMessage)
		require.True(t, ok)
		assert.Equal(t, "com.example.obs", payload.Ctx.PluginID)
		assert.Equal(t, "tile-1", payload.Ctx.TileID)
		assert.JSONEq(t, `{"hello": true}`, string(payload.Message))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inspector event")
	}
}

func TestGetVisibleTilesFiltersByPlugin(t *testing.T) {
	h := newPluginHarness(t, nil)
	ctx := context.Background()
	h.devices.folders = []string{h.folderID}

	mine, err := h.store.CreateTile(ctx, &models.Tile{
		FolderID: h.folderID, PluginID: "com.example.obs", ActionID: "scene",
	})
	require.NoError(t, err)
	_, err = h.store.CreateTile(ctx, &models.Tile{
		FolderID: h.folderID, PluginID: "com.example.other", ActionID: "noop", Column: 1,
	})
	require.NoError(t, err)

	conn := h.dial(t)
	h.register(t, conn, "com.example.obs")

	require.NoError(t, conn.WriteJSON(protocol.PluginClientMessage{
		Type: protocol.PluginClientGetVisibleTiles,
	}))

	msg := readPluginMessage(t, conn)
	assert.Equal(t, protocol.PluginServerVisibleTiles, msg.Type)
	require.Len(t, msg.Tiles, 1)
	assert.Equal(t, mine, msg.Tiles[0].ID)
}

func TestReloadClosesOrphanedSessions(t *testing.T) {
	h := newPluginHarness(t, nil)

	conn := h.dial(t)
	h.register(t, conn, "com.example.obs")

	require.NoError(t, os.RemoveAll(filepath.Join(h.dir, "obs")))
	h.registry.Reload()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Empty(t, h.registry.ConnectedPluginIDs())
	_, ok := h.registry.Plugin("com.example.obs")
	assert.False(t, ok)
}

func TestDeliverDeepLinkOffline(t *testing.T) {
	h := newPluginHarness(t, nil)
	err := h.registry.DeliverDeepLink("com.example.obs", protocol.DeepLinkContext{URL: "tilepad://deep-link/com.example.obs/auth"})
	assert.ErrorIs(t, err, ErrPluginNotConnected)
}
