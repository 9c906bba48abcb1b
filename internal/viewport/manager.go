package viewport

import (
	"fmt"
	"log"
	"sync"

	"github.com/miktos/realtime-viewer/internal/geom"
)

// Layout modes.
const (
	LayoutSingle = "single"
	LayoutQuad   = "quad"
)

// Config holds manager tunables, injected by the enclosing platform.
type Config struct {
	Width            int
	Height           int
	LayoutMode       string
	MouseSensitivity float64
	KeySpeed         float64
	SyncCameras      bool
}

// Manager owns the id→Viewport table and serializes all camera mutation
// through its lock.
type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	viewports map[string]*Viewport
	order     []string
	activeID  string
	layout    string
}

// NewManager builds the viewport set for the configured layout.
func NewManager(cfg Config) *Manager {
	if cfg.Width <= 0 {
		cfg.Width = 1920
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}
	if cfg.LayoutMode == "" {
		cfg.LayoutMode = LayoutSingle
	}
	if cfg.MouseSensitivity <= 0 {
		cfg.MouseSensitivity = 1.0
	}
	if cfg.KeySpeed <= 0 {
		cfg.KeySpeed = 1.0
	}

	m := &Manager{cfg: cfg}
	m.rebuild(cfg.LayoutMode)
	return m
}

// rebuild tears down the current viewport table and creates the layout's
// viewports. Caller must not hold the lock.
func (m *Manager) rebuild(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viewports = make(map[string]*Viewport)
	m.order = nil
	m.layout = mode

	main := newViewport("main", "Main View", m.cfg.Width, m.cfg.Height)
	m.put(main)
	m.activeID = "main"

	if mode != LayoutQuad {
		return
	}

	// Quad layout: perspective main plus three fixed orthographic views,
	// each taking a quarter of the base resolution.
	halfW, halfH := m.cfg.Width/2, m.cfg.Height/2
	main.Width, main.Height = halfW, halfH

	top := newViewport("top", "Top View", halfW, halfH)
	top.X = halfW
	top.Settings.Mode = ModeWireframe
	top.Settings.Projection = Orthographic
	top.Camera.reset("top")

	front := newViewport("front", "Front View", halfW, halfH)
	front.Y = halfH
	front.Settings.Mode = ModeWireframe
	front.Settings.Projection = Orthographic
	front.Camera.reset("front")

	side := newViewport("side", "Side View", halfW, halfH)
	side.X, side.Y = halfW, halfH
	side.Settings.Mode = ModeWireframe
	side.Settings.Projection = Orthographic
	side.Camera.reset("side")

	m.put(top)
	m.put(front)
	m.put(side)
}

func (m *Manager) put(v *Viewport) {
	m.viewports[v.ID] = v
	m.order = append(m.order, v.ID)
}

// SetLayout switches between single and quad layouts, recreating the
// viewport table.
func (m *Manager) SetLayout(mode string) error {
	if mode != LayoutSingle && mode != LayoutQuad {
		return fmt.Errorf("unknown layout mode %q", mode)
	}
	m.rebuild(mode)
	log.Printf("[viewport] layout mode set to %s", mode)
	return nil
}

// Layout returns the current layout mode.
func (m *Manager) Layout() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.layout
}

// IDs returns viewport ids in creation order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Get returns a copy of the viewport.
func (m *Manager) Get(id string) (Viewport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.viewports[id]
	if !ok {
		return Viewport{}, false
	}
	return *v, true
}

// SetActive marks the viewport as the active one.
func (m *Manager) SetActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.viewports[id]; !ok {
		return false
	}
	m.activeID = id
	return true
}

// Active returns a copy of the active viewport.
func (m *Manager) Active() (Viewport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.viewports[m.activeID]
	if !ok {
		return Viewport{}, false
	}
	return *v, true
}

// ActiveID returns the active viewport id.
func (m *Manager) ActiveID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID
}

// mutate runs fn against the named viewport's camera under the lock and
// propagates target/distance to sibling perspective viewports when camera
// sync is on.
func (m *Manager) mutate(id string, fn func(v *Viewport)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewports[id]
	if !ok {
		return false
	}
	fn(v)
	if m.cfg.SyncCameras && v.Settings.Projection == Perspective {
		m.syncFrom(v)
	}
	return true
}

// syncFrom propagates the source camera's target and distance (never its
// raw position) to every other perspective viewport, repositioning each
// along its own view direction. Caller holds the lock.
func (m *Manager) syncFrom(src *Viewport) {
	for _, id := range m.order {
		v := m.viewports[id]
		if v.ID == src.ID || v.Settings.Projection != Perspective {
			continue
		}
		dir := v.Camera.Position.Sub(v.Camera.Target)
		if dir.Length() == 0 {
			dir = geom.Vec3{1, 1, 1}
		}
		v.Camera.Target = src.Camera.Target
		v.Camera.Distance = src.Camera.Distance
		v.Camera.Position = v.Camera.Target.Add(dir.Normalized().Scale(v.Camera.Distance))
	}
}

// UpdateCamera replaces the camera's position/target (and optionally up),
// recomputing the distance invariant.
func (m *Manager) UpdateCamera(id string, position, target geom.Vec3, up *geom.Vec3) bool {
	return m.mutate(id, func(v *Viewport) {
		v.Camera.Position = position
		v.Camera.Target = target
		if up != nil {
			v.Camera.Up = *up
		}
		v.Camera.Distance = geom.Dist(position, target)
	})
}

// Orbit rotates the camera around its target.
func (m *Manager) Orbit(id string, dx, dy float64) bool {
	return m.mutate(id, func(v *Viewport) {
		v.Camera.orbit(dx, dy, m.cfg.MouseSensitivity)
	})
}

// Pan translates camera and target across the view plane.
func (m *Manager) Pan(id string, dx, dy float64) bool {
	return m.mutate(id, func(v *Viewport) {
		v.Camera.pan(dx, dy, m.cfg.MouseSensitivity)
	})
}

// Zoom changes the camera's distance to its target.
func (m *Manager) Zoom(id string, delta float64) bool {
	return m.mutate(id, func(v *Viewport) {
		v.Camera.zoom(delta, m.cfg.MouseSensitivity)
	})
}

// Frame re-centers the camera to fit bounds. nil bounds frames the unit
// region around the origin.
func (m *Manager) Frame(id string, bounds *Bounds) bool {
	b := Bounds{Min: geom.Vec3{-1, -1, -1}, Max: geom.Vec3{1, 1, 1}}
	if bounds != nil {
		b = *bounds
	}
	return m.mutate(id, func(v *Viewport) {
		v.Camera.frame(b, v.Settings.Projection)
	})
}

// Reset restores the viewport's canonical camera.
func (m *Manager) Reset(id string) bool {
	return m.mutate(id, func(v *Viewport) {
		v.Camera.reset(v.ID)
	})
}

// ResetAll resets every viewport's camera.
func (m *Manager) ResetAll() {
	for _, id := range m.IDs() {
		m.Reset(id)
	}
}

// SetViewDirection points the camera along dir at its current distance.
func (m *Manager) SetViewDirection(id string, dir geom.Vec3) bool {
	return m.mutate(id, func(v *Viewport) {
		v.Camera.setViewDirection(dir)
	})
}

// SetMode changes the viewport's display mode.
func (m *Manager) SetMode(id string, mode Mode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewports[id]
	if !ok {
		return false
	}
	v.Settings.Mode = mode
	return true
}

// SetProjection changes the viewport's camera projection.
func (m *Manager) SetProjection(id string, projection Projection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewports[id]
	if !ok {
		return false
	}
	v.Settings.Projection = projection
	return true
}
