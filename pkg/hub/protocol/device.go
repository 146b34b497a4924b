package protocol

import (
	"encoding/json"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// DeviceClientType discriminates messages received from a device.
type DeviceClientType string

const (
	DeviceClientRequestApproval DeviceClientType = "RequestApproval"
	DeviceClientAuthenticate    DeviceClientType = "Authenticate"
	DeviceClientRequestTiles    DeviceClientType = "RequestTiles"
	DeviceClientTileClicked     DeviceClientType = "TileClicked"
	DeviceClientRecvFromDisplay DeviceClientType = "RecvFromDisplay"
)

// DeviceClientMessage is a message received from a device session. Only
// the fields matching Type are populated.
type DeviceClientMessage struct {
	Type DeviceClientType `json:"type"`

	// RequestApproval
	Name string `json:"name,omitempty"`

	// Authenticate
	AccessToken string `json:"access_token,omitempty"`

	// TileClicked
	TileID string `json:"tile_id,omitempty"`

	// RecvFromDisplay
	Ctx     *InspectorContext `json:"ctx,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`
}

// DeviceServerType discriminates messages sent to a device.
type DeviceServerType string

const (
	DeviceServerDeclined           DeviceServerType = "Declined"
	DeviceServerApproved           DeviceServerType = "Approved"
	DeviceServerRevoked            DeviceServerType = "Revoked"
	DeviceServerAuthenticated      DeviceServerType = "Authenticated"
	DeviceServerInvalidAccessToken DeviceServerType = "InvalidAccessToken"
	DeviceServerTiles              DeviceServerType = "Tiles"
	DeviceServerRecvFromPlugin     DeviceServerType = "RecvFromPlugin"
)

// DeviceServerMessage is a message sent to a device session.
type DeviceServerMessage struct {
	Type DeviceServerType `json:"type"`

	// Approved / Authenticated
	DeviceID    string `json:"device_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`

	// Tiles. No omitempty on Tiles: an empty folder still carries
	// "tiles": [] so clients clear their grid.
	Folder *models.Folder `json:"folder,omitempty"`
	Tiles  []DeviceTile   `json:"tiles"`

	// RecvFromPlugin
	Ctx     *InspectorContext `json:"ctx,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`
}

// NewDeviceApproved builds the terminal approval reply.
func NewDeviceApproved(deviceID, accessToken string) DeviceServerMessage {
	return DeviceServerMessage{
		Type:        DeviceServerApproved,
		DeviceID:    deviceID,
		AccessToken: accessToken,
	}
}

// NewDeviceAuthenticated builds the successful authentication reply.
func NewDeviceAuthenticated(deviceID string) DeviceServerMessage {
	return DeviceServerMessage{Type: DeviceServerAuthenticated, DeviceID: deviceID}
}

// NewDeviceTiles builds a folder refresh payload in (row, column) order.
func NewDeviceTiles(folder *models.Folder, tiles []*models.Tile) DeviceServerMessage {
	view := make([]DeviceTile, 0, len(tiles))
	for _, tile := range tiles {
		view = append(view, NewDeviceTile(tile))
	}
	return DeviceServerMessage{Type: DeviceServerTiles, Folder: folder, Tiles: view}
}

// NewDeviceRecvFromPlugin wraps a plugin-originated display message.
func NewDeviceRecvFromPlugin(ctx InspectorContext, message json.RawMessage) DeviceServerMessage {
	return DeviceServerMessage{
		Type:    DeviceServerRecvFromPlugin,
		Ctx:     &ctx,
		Message: rawMessage(message),
	}
}
