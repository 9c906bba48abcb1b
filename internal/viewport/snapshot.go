package viewport

import "github.com/miktos/realtime-viewer/internal/geom"

// CameraData is the wire-facing view of one viewport's camera.
type CameraData struct {
	Position   geom.Vec3  `json:"position"`
	Target     geom.Vec3  `json:"target"`
	Up         geom.Vec3  `json:"up"`
	Distance   float64    `json:"distance"`
	Projection Projection `json:"projection"`
}

// ViewportInfo is the wire-facing view of one viewport.
type ViewportInfo struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	X       int        `json:"x"`
	Y       int        `json:"y"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Active  bool       `json:"active"`
	Visible bool       `json:"visible"`
	Mode    Mode       `json:"mode"`
	Proj    Projection `json:"projection"`
	Camera  CameraData `json:"camera"`
}

// LayoutSnapshot captures the whole viewport table for clients.
type LayoutSnapshot struct {
	Mode      string                  `json:"mode"`
	ActiveID  string                  `json:"active_viewport"`
	Viewports map[string]ViewportInfo `json:"viewports"`
}

// Snapshot returns the current layout configuration.
func (m *Manager) Snapshot() LayoutSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := LayoutSnapshot{
		Mode:      m.layout,
		ActiveID:  m.activeID,
		Viewports: make(map[string]ViewportInfo, len(m.viewports)),
	}
	for id, v := range m.viewports {
		snap.Viewports[id] = ViewportInfo{
			ID:      v.ID,
			Name:    v.Name,
			X:       v.X,
			Y:       v.Y,
			Width:   v.Width,
			Height:  v.Height,
			Active:  v.Active,
			Visible: v.Visible,
			Mode:    v.Settings.Mode,
			Proj:    v.Settings.Projection,
			Camera:  cameraData(v),
		}
	}
	return snap
}

// CameraSnapshot returns the camera data of one viewport.
func (m *Manager) CameraSnapshot(id string) (CameraData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.viewports[id]
	if !ok {
		return CameraData{}, false
	}
	return cameraData(v), true
}

func cameraData(v *Viewport) CameraData {
	return CameraData{
		Position:   v.Camera.Position,
		Target:     v.Camera.Target,
		Up:         v.Camera.Up,
		Distance:   v.Camera.Distance,
		Projection: v.Settings.Projection,
	}
}

// ExportedSettings is the persistable form of the manager's configuration.
type ExportedSettings struct {
	LayoutMode       string              `json:"layout_mode"`
	ActiveViewport   string              `json:"active_viewport"`
	SyncCameras      bool                `json:"sync_cameras"`
	MouseSensitivity float64             `json:"mouse_sensitivity"`
	Viewports        map[string]Viewport `json:"viewports"`
}

// ExportSettings returns every viewport's settings and camera for
// persistence by the enclosing platform.
func (m *Manager) ExportSettings() ExportedSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := ExportedSettings{
		LayoutMode:       m.layout,
		ActiveViewport:   m.activeID,
		SyncCameras:      m.cfg.SyncCameras,
		MouseSensitivity: m.cfg.MouseSensitivity,
		Viewports:        make(map[string]Viewport, len(m.viewports)),
	}
	for id, v := range m.viewports {
		out.Viewports[id] = *v
	}
	return out
}
