package viewer

import (
	"github.com/miktos/realtime-viewer/internal/geom"
	"github.com/miktos/realtime-viewer/internal/scene"
	"github.com/miktos/realtime-viewer/internal/viewport"
)

type MessageType string

const (
	MsgSceneState     MessageType = "scene_state"
	MsgSceneUpdate    MessageType = "scene_update"
	MsgObjectUpdate   MessageType = "object_update"
	MsgCameraUpdate   MessageType = "camera_update"
	MsgCameraReset    MessageType = "camera_reset"
	MsgQualityChanged MessageType = "quality_changed"
	MsgViewportMode   MessageType = "viewport_mode"
	MsgError          MessageType = "error"
)

// ObjectInfo is the flattened wire form of one scene object.
type ObjectInfo struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Location geom.Vec3      `json:"location"`
	Rotation geom.Vec3      `json:"rotation"`
	Scale    geom.Vec3      `json:"scale"`
	Visible  bool           `json:"visible"`
	Selected bool           `json:"selected"`
	Data     map[string]any `json:"data,omitempty"`
}

func objectInfo(o *scene.Object) ObjectInfo {
	return ObjectInfo{
		Name:     o.Name,
		Type:     o.Type,
		Location: o.Transform.Location,
		Rotation: o.Transform.Rotation,
		Scale:    o.Transform.Scale,
		Visible:  o.Visible,
		Selected: o.Selected,
		Data:     o.Data,
	}
}

// SceneStateMessage is the full-state push sent on connect and on request.
type SceneStateMessage struct {
	Type      MessageType             `json:"type"`
	Objects   []ObjectInfo            `json:"objects"`
	Camera    viewport.CameraData     `json:"camera"`
	Viewport  viewport.LayoutSnapshot `json:"viewport"`
	Quality   string                  `json:"quality"`
	FPS       float64                 `json:"fps"`
	Timestamp float64                 `json:"timestamp"`
}

// ChangeInfo is one scene change on the wire.
type ChangeInfo struct {
	Kind   scene.ChangeKind `json:"kind"`
	Name   string           `json:"name,omitempty"`
	Object *ObjectInfo      `json:"object,omitempty"`
}

func changeInfo(ch scene.Change) ChangeInfo {
	ci := ChangeInfo{Kind: ch.Kind, Name: ch.Name}
	if ch.New != nil {
		obj := objectInfo(ch.New)
		ci.Object = &obj
	}
	return ci
}

// SceneUpdateMessage carries a tick's batch of changes.
type SceneUpdateMessage struct {
	Type      MessageType  `json:"type"`
	Changes   []ChangeInfo `json:"changes"`
	Timestamp float64      `json:"timestamp"`
}

// ObjectUpdateMessage carries a single-object change.
type ObjectUpdateMessage struct {
	Type      MessageType      `json:"type"`
	Kind      scene.ChangeKind `json:"kind"`
	Name      string           `json:"name"`
	Object    *ObjectInfo      `json:"object,omitempty"`
	Timestamp float64          `json:"timestamp"`
}

// CameraUpdateMessage announces a camera move on one viewport.
type CameraUpdateMessage struct {
	Type     MessageType         `json:"type"`
	Viewport string              `json:"viewport"`
	Camera   viewport.CameraData `json:"camera"`
}

// CameraResetMessage announces that all cameras returned to their defaults.
type CameraResetMessage struct {
	Type      MessageType             `json:"type"`
	Viewports viewport.LayoutSnapshot `json:"viewports"`
}

// QualityChangedMessage announces the active render quality tier.
type QualityChangedMessage struct {
	Type    MessageType `json:"type"`
	Quality string      `json:"quality"`
}

// ViewportModeMessage announces a viewport's display mode.
type ViewportModeMessage struct {
	Type     MessageType   `json:"type"`
	Viewport string        `json:"viewport"`
	Mode     viewport.Mode `json:"mode"`
}

// ErrorMessage reports a server-side problem to one client.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ClientMessage is the envelope for everything a client can send. Fields
// beyond Type are populated per message type.
type ClientMessage struct {
	Type MessageType `json:"type"`

	// set_quality
	Quality string `json:"quality,omitempty"`

	// set_camera
	Position *geom.Vec3 `json:"position,omitempty"`
	Target   *geom.Vec3 `json:"target,omitempty"`

	// navigate / set_viewport_mode
	Viewport string              `json:"viewport,omitempty"`
	Mode     viewport.Mode       `json:"mode,omitempty"`
	Event    *viewport.MouseEvent `json:"event,omitempty"`
	Key      string              `json:"key,omitempty"`
	Pressed  bool                `json:"pressed,omitempty"`

	// screenshot
	Data string `json:"data,omitempty"`
}

// Client message types.
const (
	ClientGetSceneState   MessageType = "get_scene_state"
	ClientResetView       MessageType = "reset_view"
	ClientSetQuality      MessageType = "set_quality"
	ClientSetCamera       MessageType = "set_camera"
	ClientNavigate        MessageType = "navigate"
	ClientSetViewportMode MessageType = "set_viewport_mode"
	ClientScreenshot      MessageType = "screenshot"
)

// Render quality tiers.
var qualityTiers = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
	"ultra":  true,
}
