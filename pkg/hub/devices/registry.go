// Package devices tracks live device sessions, pending approval requests
// and the device-to-session index, and fans folder updates out to the
// devices viewing them.
package devices

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/events"
	"github.com/tilepad/tilepad-server/pkg/hub/metrics"
	"github.com/tilepad/tilepad-server/pkg/hub/models"
	"github.com/tilepad/tilepad-server/pkg/hub/protocol"
	"github.com/tilepad/tilepad-server/pkg/hub/session"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
)

var (
	// ErrUnknownRequest is returned when an approval request no longer exists.
	ErrUnknownRequest = errors.New("unknown device request")

	// ErrSessionGone is returned when the requesting session died before
	// approval completed.
	ErrSessionGone = errors.New("device session is gone")
)

// Dispatcher routes an authenticated device's tile press. Implemented by
// the action dispatch component; injected after construction to break the
// registry/dispatch cycle.
type Dispatcher interface {
	TilePressed(ctx context.Context, device *models.Device, tileID string)
}

// PluginForwarder forwards display-originated messages to the owning
// plugin session. Implemented by the plugin registry.
type PluginForwarder interface {
	ForwardDisplayMessage(ctx protocol.InspectorContext, message json.RawMessage)
}

// Registry is the authoritative index of device sessions.
//
// Locks are only held across map mutations, never across store or socket
// operations.
type Registry struct {
	store *store.Store
	bus   *events.Bus

	dispatcher Dispatcher
	plugins    PluginForwarder

	mu             sync.RWMutex
	sessions       map[string]*session.Session // session id -> session
	sessionDevices map[string]string           // session id -> device id
	deviceSessions map[string]string           // device id -> session id
	requests       []*Request

	refresh *refresher
}

// NewRegistry creates a device registry backed by the given store and bus.
func NewRegistry(st *store.Store, bus *events.Bus) *Registry {
	return &Registry{
		store:          st,
		bus:            bus,
		sessions:       make(map[string]*session.Session),
		sessionDevices: make(map[string]string),
		deviceSessions: make(map[string]string),
		refresh:        newRefresher(),
	}
}

// SetDispatcher injects the action dispatcher. Must be called before the
// first connection is accepted.
func (r *Registry) SetDispatcher(d Dispatcher) { r.dispatcher = d }

// SetPluginForwarder injects the plugin registry's display-message sink.
func (r *Registry) SetPluginForwarder(p PluginForwarder) { r.plugins = p }

// Run drives the folder refresh worker until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	r.refresh.run(ctx, func(folderID string) {
		r.performFolderRefresh(ctx, folderID)
	})
}

// HandleConnection wraps an upgraded socket into a device session and
// blocks until it closes.
func (r *Registry) HandleConnection(conn *websocket.Conn) {
	s := session.New(conn, session.KindDevice, r)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	logger.Debug("device session opened", "session_id", s.ID(), "remote", s.RemoteAddr())
	s.Run()
}

// OnMessage implements session.Handler.
func (r *Registry) OnMessage(s *session.Session, data []byte) {
	var msg protocol.DeviceClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Tolerant reading: older/newer clients may send frames we do not
		// understand.
		metrics.MessagesDropped.WithLabelValues(string(session.KindDevice)).Inc()
		logger.Warn("dropping malformed device message", "session_id", s.ID(), "error", err)
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case protocol.DeviceClientRequestApproval:
		r.handleRequestApproval(s, msg.Name)
	case protocol.DeviceClientAuthenticate:
		r.handleAuthenticate(ctx, s, msg.AccessToken)
	case protocol.DeviceClientRequestTiles:
		r.handleRequestTiles(ctx, s)
	case protocol.DeviceClientTileClicked:
		r.handleTileClicked(ctx, s, msg.TileID)
	case protocol.DeviceClientRecvFromDisplay:
		r.handleRecvFromDisplay(s, msg)
	default:
		metrics.MessagesDropped.WithLabelValues(string(session.KindDevice)).Inc()
		logger.Warn("dropping device message with unknown type",
			"session_id", s.ID(), "type", msg.Type)
	}
}

// OnClose implements session.Handler.
func (r *Registry) OnClose(s *session.Session) {
	r.mu.Lock()
	delete(r.sessions, s.ID())
	if deviceID, ok := r.sessionDevices[s.ID()]; ok {
		delete(r.sessionDevices, s.ID())
		if r.deviceSessions[deviceID] == s.ID() {
			delete(r.deviceSessions, deviceID)
		}
	}
	var removed *Request
	for i, req := range r.requests {
		if req.SessionID == s.ID() {
			removed = req
			r.requests = append(r.requests[:i], r.requests[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if removed != nil {
		r.bus.Publish(events.TopicDeviceRequestRemoved, removed)
	}
	logger.Debug("device session closed", "session_id", s.ID())
}

// Requests returns a snapshot of the pending approval requests.
func (r *Registry) Requests() []*Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// ConnectedDeviceIDs returns the ids of devices with a live session.
func (r *Registry) ConnectedDeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.deviceSessions))
	for id := range r.deviceSessions {
		ids = append(ids, id)
	}
	return ids
}

// IsConnected reports whether a device currently has a live session.
func (r *Registry) IsConnected(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.deviceSessions[deviceID]
	return ok
}

// Approve mints a device row for a pending request and replies to the
// requesting session. The request is claimed under the lock before any
// store work, so a concurrent Approve for the same id gets UnknownRequest
// and exactly one device row is minted. The store write happens before the
// terminal message so a reconnecting client observes the new authoritative
// state.
func (r *Registry) Approve(ctx context.Context, requestID string) (string, error) {
	r.mu.Lock()
	var req *Request
	for i, candidate := range r.requests {
		if candidate.ID == requestID {
			req = candidate
			r.requests = append(r.requests[:i], r.requests[i+1:]...)
			break
		}
	}
	if req == nil {
		r.mu.Unlock()
		return "", ErrUnknownRequest
	}
	s, alive := r.sessions[req.SessionID]
	r.mu.Unlock()

	if !alive {
		r.bus.Publish(events.TopicDeviceRequestRemoved, req)
		return "", ErrSessionGone
	}

	token, err := generateAccessToken()
	if err != nil {
		r.reinsertRequest(req)
		return "", err
	}

	device := &models.Device{Name: req.Name, AccessToken: token}
	deviceID, err := r.store.CreateDevice(ctx, device)
	if err != nil {
		r.reinsertRequest(req)
		return "", err
	}

	s.Send(protocol.NewDeviceApproved(deviceID, token))
	r.bus.Publish(events.TopicDeviceRequestAccepted, req)
	logger.Info("device request approved", "request_id", requestID, "device_id", deviceID)
	return deviceID, nil
}

// reinsertRequest restores a claimed request after a failed approval. The
// request stays consumed when its session closed in the meantime.
func (r *Registry) reinsertRequest(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, alive := r.sessions[req.SessionID]; !alive {
		return
	}
	r.requests = append(r.requests, req)
}

// Decline removes a pending request and tells the session, best-effort.
func (r *Registry) Decline(requestID string) error {
	r.mu.Lock()
	var req *Request
	for i, candidate := range r.requests {
		if candidate.ID == requestID {
			req = candidate
			r.requests = append(r.requests[:i], r.requests[i+1:]...)
			break
		}
	}
	var s *session.Session
	if req != nil {
		s = r.sessions[req.SessionID]
	}
	r.mu.Unlock()

	if req == nil {
		return ErrUnknownRequest
	}
	if s != nil {
		s.Send(protocol.DeviceServerMessage{Type: protocol.DeviceServerDeclined})
	}
	r.bus.Publish(events.TopicDeviceRequestDeclined, req)
	logger.Info("device request declined", "request_id", requestID)
	return nil
}

// Revoke deletes a device row and forcibly terminates its live session.
// The store delete happens before the Revoked message.
func (r *Registry) Revoke(ctx context.Context, deviceID string) error {
	if err := r.store.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}
	r.bus.Publish(events.TopicDeviceRevoked, deviceID)

	r.mu.Lock()
	var s *session.Session
	if sessionID, ok := r.deviceSessions[deviceID]; ok {
		s = r.sessions[sessionID]
		delete(r.deviceSessions, deviceID)
		delete(r.sessionDevices, sessionID)
	}
	r.mu.Unlock()

	if s != nil {
		s.Send(protocol.DeviceServerMessage{Type: protocol.DeviceServerRevoked})
		s.Close()
	}
	logger.Info("device revoked", "device_id", deviceID)
	return nil
}

// BackgroundUpdateFolder schedules a coalesced refresh push to every
// device session currently viewing the folder.
func (r *Registry) BackgroundUpdateFolder(folderID string) {
	r.refresh.enqueue(folderID)
}

// RefreshDevice pushes the device's current folder to its live session,
// if any. Used after navigation and reparenting.
func (r *Registry) RefreshDevice(ctx context.Context, deviceID string) {
	r.mu.RLock()
	sessionID, ok := r.deviceSessions[deviceID]
	var s *session.Session
	if ok {
		s = r.sessions[sessionID]
	}
	r.mu.RUnlock()
	if s == nil {
		return
	}

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		logger.Warn("cannot refresh device", "device_id", deviceID, "error", err)
		return
	}
	r.sendTiles(ctx, s, device.FolderID)
}

// VisibleFolderIDs returns the distinct folders currently viewed by
// connected devices.
func (r *Registry) VisibleFolderIDs(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, deviceID := range r.ConnectedDeviceIDs() {
		device, err := r.store.GetDevice(ctx, deviceID)
		if err != nil {
			continue
		}
		if _, ok := seen[device.FolderID]; ok {
			continue
		}
		seen[device.FolderID] = struct{}{}
		out = append(out, device.FolderID)
	}
	return out
}

// SendToDevice delivers a server message to a device's live session.
// Returns false when the device has no session.
func (r *Registry) SendToDevice(deviceID string, msg protocol.DeviceServerMessage) bool {
	r.mu.RLock()
	sessionID, ok := r.deviceSessions[deviceID]
	var s *session.Session
	if ok {
		s = r.sessions[sessionID]
	}
	r.mu.RUnlock()
	if s == nil {
		return false
	}
	s.Send(msg)
	return true
}

func (r *Registry) handleRequestApproval(s *session.Session, name string) {
	req := newRequest(s.ID(), s.RemoteAddr(), name)

	r.mu.Lock()
	if deviceID, bound := r.sessionDevices[s.ID()]; bound {
		r.mu.Unlock()
		logger.Warn("dropping approval request from authenticated session",
			"session_id", s.ID(), "device_id", deviceID)
		return
	}
	var replaced *Request
	for i, candidate := range r.requests {
		if candidate.SessionID == s.ID() {
			replaced = candidate
			r.requests = append(r.requests[:i], r.requests[i+1:]...)
			break
		}
	}
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if replaced != nil {
		r.bus.Publish(events.TopicDeviceRequestRemoved, replaced)
	}
	r.bus.Publish(events.TopicDeviceRequestAdded, req)
	logger.Info("device requested approval",
		"session_id", s.ID(), "name", name, "remote", s.RemoteAddr())
}

// handleAuthenticate binds the session to the device matching the access
// token, evicting any prior session bound to that device. Binding is
// serialized by the registry mutex; on a near-simultaneous double
// authenticate the later writer wins on last_connected_at.
func (r *Registry) handleAuthenticate(ctx context.Context, s *session.Session, token string) {
	device, err := r.store.GetDeviceByAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			s.Send(protocol.DeviceServerMessage{Type: protocol.DeviceServerInvalidAccessToken})
			logger.Warn("device authentication failed", "session_id", s.ID())
			return
		}
		logger.Error("device authentication lookup failed", "session_id", s.ID(), "error", err)
		return
	}

	r.mu.Lock()
	var evicted *session.Session
	if oldSessionID, ok := r.deviceSessions[device.ID]; ok && oldSessionID != s.ID() {
		evicted = r.sessions[oldSessionID]
		delete(r.sessionDevices, oldSessionID)
	}
	r.deviceSessions[device.ID] = s.ID()
	r.sessionDevices[s.ID()] = device.ID
	r.mu.Unlock()

	if evicted != nil {
		logger.Debug("evicting previous device session",
			"device_id", device.ID, "session_id", evicted.ID())
		evicted.Close()
	}

	if err := r.store.TouchDeviceConnected(ctx, device.ID, time.Now()); err != nil {
		logger.Warn("failed to record device connection time",
			"device_id", device.ID, "error", err)
	}

	s.Send(protocol.NewDeviceAuthenticated(device.ID))
	r.bus.Publish(events.TopicDeviceAuthenticated, device.ID)
	logger.Info("device authenticated", "device_id", device.ID, "session_id", s.ID())
}

func (r *Registry) handleRequestTiles(ctx context.Context, s *session.Session) {
	device, ok := r.authenticatedDevice(ctx, s)
	if !ok {
		return
	}
	r.sendTiles(ctx, s, device.FolderID)
}

func (r *Registry) handleTileClicked(ctx context.Context, s *session.Session, tileID string) {
	device, ok := r.authenticatedDevice(ctx, s)
	if !ok {
		return
	}
	if r.dispatcher == nil {
		logger.Warn("tile press with no dispatcher configured", "tile_id", tileID)
		return
	}
	r.dispatcher.TilePressed(ctx, device, tileID)
}

func (r *Registry) handleRecvFromDisplay(s *session.Session, msg protocol.DeviceClientMessage) {
	if msg.Ctx == nil {
		logger.Warn("display message without context", "session_id", s.ID())
		return
	}
	if r.plugins == nil {
		return
	}
	r.plugins.ForwardDisplayMessage(*msg.Ctx, msg.Message)
}

// authenticatedDevice resolves the session's bound device row. Frames from
// unauthenticated sessions are dropped with a warning.
func (r *Registry) authenticatedDevice(ctx context.Context, s *session.Session) (*models.Device, bool) {
	r.mu.RLock()
	deviceID, ok := r.sessionDevices[s.ID()]
	r.mu.RUnlock()
	if !ok {
		logger.Warn("dropping frame from unauthenticated device session", "session_id", s.ID())
		return nil, false
	}

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		logger.Warn("device row missing for live session",
			"device_id", deviceID, "error", err)
		return nil, false
	}
	return device, true
}

func (r *Registry) sendTiles(ctx context.Context, s *session.Session, folderID string) {
	folder, err := r.store.GetFolder(ctx, folderID)
	if err != nil {
		logger.Warn("cannot load folder for device", "folder_id", folderID, "error", err)
		return
	}
	tiles, err := r.store.ListTilesByFolder(ctx, folderID)
	if err != nil {
		logger.Error("cannot list folder tiles", "folder_id", folderID, "error", err)
		return
	}
	s.Send(protocol.NewDeviceTiles(folder, tiles))
}

// performFolderRefresh pushes the folder's tiles to every connected device
// viewing it.
func (r *Registry) performFolderRefresh(ctx context.Context, folderID string) {
	folder, err := r.store.GetFolder(ctx, folderID)
	if err != nil {
		// Folder may have been deleted since the refresh was queued; the
		// delete path refreshes the reparented devices itself.
		logger.Debug("skipping refresh for missing folder", "folder_id", folderID)
		return
	}
	tiles, err := r.store.ListTilesByFolder(ctx, folderID)
	if err != nil {
		logger.Error("cannot list folder tiles", "folder_id", folderID, "error", err)
		return
	}
	msg := protocol.NewDeviceTiles(folder, tiles)

	for _, deviceID := range r.ConnectedDeviceIDs() {
		device, err := r.store.GetDevice(ctx, deviceID)
		if err != nil || device.FolderID != folderID {
			continue
		}
		r.SendToDevice(deviceID, msg)
	}
	metrics.FolderRefreshes.Inc()
}
