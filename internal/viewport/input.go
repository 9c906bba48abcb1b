package viewport

import "github.com/miktos/realtime-viewer/internal/geom"

// Mouse button bitmask, matching the browser's MouseEvent.buttons.
const (
	ButtonLeft   = 1
	ButtonRight  = 2
	ButtonMiddle = 4
)

// MouseEvent is one navigation input from a client.
type MouseEvent struct {
	Type       string  `json:"event"` // "wheel" or "drag"
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
	WheelDelta float64 `json:"wheel_delta"`
	Buttons    int     `json:"buttons"`
}

// HandleMouse routes a mouse event to the matching camera operation:
// wheel→zoom, left-drag→orbit, right-drag→pan, middle-drag→zoom.
func (m *Manager) HandleMouse(id string, ev MouseEvent) bool {
	switch ev.Type {
	case "wheel":
		return m.Zoom(id, ev.WheelDelta)
	case "drag":
		switch {
		case ev.Buttons&ButtonLeft != 0:
			return m.Orbit(id, ev.DX, ev.DY)
		case ev.Buttons&ButtonRight != 0:
			return m.Pan(id, ev.DX, ev.DY)
		case ev.Buttons&ButtonMiddle != 0:
			return m.Zoom(id, ev.DY)
		}
	}
	return false
}

// HandleKey routes keyboard navigation: Home/numpad-period frame the scene,
// numpad 1/3/7 snap to the Blender-style front/side/top views.
func (m *Manager) HandleKey(id, key string, pressed bool) bool {
	if !pressed {
		return false
	}
	switch key {
	case "Home", "NumpadPeriod":
		return m.Frame(id, nil)
	case "Numpad1":
		return m.SetViewDirection(id, geom.Vec3{0, -1, 0})
	case "Numpad3":
		return m.SetViewDirection(id, geom.Vec3{1, 0, 0})
	case "Numpad7":
		return m.SetViewDirection(id, geom.Vec3{0, 0, 1})
	}
	return false
}
