package viewer

import (
	"fmt"

	"github.com/miktos/realtime-viewer/internal/geom"
	"github.com/miktos/realtime-viewer/internal/scene"
	"github.com/miktos/realtime-viewer/internal/viewport"
)

// The platform-facing API. The authoring application pushes edits in through
// these calls; connected previews pick them up on the next tick. All methods
// are safe to call from any goroutine, running or not — changes made while
// stopped are delivered once clients connect.

// UpdateScene replaces the staged scene wholesale and records the resulting
// changes.
func (s *Server) UpdateScene(raw *scene.RawScene) []scene.Change {
	if raw == nil {
		return nil
	}
	s.stageMu.Lock()
	s.stage = *raw
	s.stage.Objects = append([]scene.RawObject(nil), raw.Objects...)
	s.stageMu.Unlock()
	return s.sync.Update(raw)
}

// AddObject adds an object to the staged scene. An object with the same name
// is replaced.
func (s *Server) AddObject(obj scene.RawObject) []scene.Change {
	s.stageMu.Lock()
	replaced := false
	for i := range s.stage.Objects {
		if s.stage.Objects[i].Name == obj.Name {
			s.stage.Objects[i] = obj
			replaced = true
			break
		}
	}
	if !replaced {
		s.stage.Objects = append(s.stage.Objects, obj)
	}
	raw := s.snapshotStageLocked()
	s.stageMu.Unlock()
	return s.sync.Update(raw)
}

// ModifyObject replaces a staged object by name.
func (s *Server) ModifyObject(obj scene.RawObject) ([]scene.Change, error) {
	s.stageMu.Lock()
	found := false
	for i := range s.stage.Objects {
		if s.stage.Objects[i].Name == obj.Name {
			s.stage.Objects[i] = obj
			found = true
			break
		}
	}
	if !found {
		s.stageMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, obj.Name)
	}
	raw := s.snapshotStageLocked()
	s.stageMu.Unlock()
	return s.sync.Update(raw), nil
}

// DeleteObject removes a staged object by name.
func (s *Server) DeleteObject(name string) ([]scene.Change, error) {
	s.stageMu.Lock()
	idx := -1
	for i := range s.stage.Objects {
		if s.stage.Objects[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.stageMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, name)
	}
	s.stage.Objects = append(s.stage.Objects[:idx], s.stage.Objects[idx+1:]...)
	raw := s.snapshotStageLocked()
	s.stageMu.Unlock()
	return s.sync.Update(raw), nil
}

// ClearScene empties the staged scene and records a single cleared event.
func (s *Server) ClearScene() {
	s.stageMu.Lock()
	s.stage = scene.RawScene{}
	s.stageMu.Unlock()
	s.sync.Clear()
}

// snapshotStageLocked copies the staged scene for submission. Caller holds
// stageMu.
func (s *Server) snapshotStageLocked() *scene.RawScene {
	raw := s.stage
	raw.Objects = append([]scene.RawObject(nil), s.stage.Objects...)
	return &raw
}

// SetCamera moves the active viewport's camera and announces it to clients.
func (s *Server) SetCamera(position, target geom.Vec3) error {
	id := s.views.ActiveID()
	if !s.views.UpdateCamera(id, position, target, nil) {
		return fmt.Errorf("unknown viewport %q", id)
	}
	s.dispatch(func() { s.broadcastCamera(id) })
	return nil
}

// SetQuality changes the render quality tier and announces it.
func (s *Server) SetQuality(quality string) error {
	if !qualityTiers[quality] {
		return fmt.Errorf("%w: %q", ErrUnknownQuality, quality)
	}
	if !s.dispatch(func() { s.applyQuality(quality) }) {
		// Not running: still record the tier for the next start.
		s.mu.Lock()
		s.quality = quality
		s.mu.Unlock()
	}
	return nil
}

// TakeScreenshot returns the most recent frame a client posted over the
// channel. Browser clients render the scene, so frames originate there.
func (s *Server) TakeScreenshot() ([]byte, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if len(s.lastFrame) == 0 {
		return nil, ErrNoFrame
	}
	out := make([]byte, len(s.lastFrame))
	copy(out, s.lastFrame)
	return out, nil
}

// Status is the viewer's externally visible state.
type Status struct {
	State    State                   `json:"state"`
	HTTPPort int                     `json:"http_port"`
	WSPort   int                     `json:"ws_port"`
	Clients  int                     `json:"clients"`
	FPS      float64                 `json:"fps"`
	Quality  string                  `json:"quality"`
	Layout   string                  `json:"layout"`
	Scene    scene.Summary           `json:"scene"`
	Viewport viewport.LayoutSnapshot `json:"viewport"`
}

// ViewerState reports lifecycle state, negotiated ports, client count,
// observed FPS, and scene/viewport summaries.
func (s *Server) ViewerState() Status {
	s.mu.RLock()
	st := Status{
		State:    s.state,
		HTTPPort: s.httpPort,
		WSPort:   s.wsPort,
		FPS:      s.fps,
		Quality:  s.quality,
	}
	s.mu.RUnlock()

	st.Clients = int(s.clientCount.Load())
	st.Layout = s.views.Layout()
	st.Scene = s.sync.Summarize()
	st.Viewport = s.views.Snapshot()
	return st
}

// Synchronizer exposes the scene synchronizer for observer registration.
func (s *Server) Synchronizer() *scene.Synchronizer {
	return s.sync
}

// Viewports exposes the viewport manager.
func (s *Server) Viewports() *viewport.Manager {
	return s.views
}
