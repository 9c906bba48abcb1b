// Package scene owns the canonical scene snapshot, computes diffs between
// successive snapshots, and notifies observers of object-level changes.
package scene

import (
	"time"

	"github.com/miktos/realtime-viewer/internal/geom"
)

// Transform is the location/rotation/scale triple attached to every object.
// Rotation is carried through to clients unchanged; composing it into a
// matrix is the renderer's job.
type Transform struct {
	Location geom.Vec3 `json:"location"`
	Rotation geom.Vec3 `json:"rotation"`
	Scale    geom.Vec3 `json:"scale"`
}

// Object is one object's snapshot inside a scene state. Name is the unique
// key within a snapshot.
type Object struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Transform Transform      `json:"transform"`
	Data      map[string]any `json:"data,omitempty"`
	Visible   bool           `json:"visible"`
	Selected  bool           `json:"selected"`
}

// State is a complete scene snapshot. It is immutable once published: each
// sync cycle replaces it wholesale and keeps the prior one around for a
// single cycle as "previous".
type State struct {
	objects map[string]Object
	order   []string // object names in raw-input order; pins diff iteration

	ActiveObject string
	SceneName    string
	FrameStart   int
	FrameEnd     int
	FrameCurrent int
	Timestamp    time.Time
}

// RawObject is one object as described by the scene-data provider. Zero
// values get Blender-ish defaults: type MESH, unit scale, visible.
type RawObject struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Location geom.Vec3      `json:"location"`
	Rotation geom.Vec3      `json:"rotation"`
	Scale    *geom.Vec3     `json:"scale,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Visible  *bool          `json:"visible,omitempty"`
	Selected bool           `json:"selected"`
}

// RawScene is the provider's full description of the authoring scene. The
// object slice order is preserved into the snapshot and determines diff
// iteration order.
type RawScene struct {
	Objects      []RawObject `json:"objects"`
	ActiveObject string      `json:"active_object,omitempty"`
	SceneName    string      `json:"scene_name,omitempty"`
	FrameStart   int         `json:"frame_start,omitempty"`
	FrameEnd     int         `json:"frame_end,omitempty"`
	FrameCurrent int         `json:"frame_current,omitempty"`
}

// NewState builds an immutable snapshot from raw provider data.
func NewState(raw *RawScene) *State {
	st := &State{
		objects:      make(map[string]Object, len(raw.Objects)),
		order:        make([]string, 0, len(raw.Objects)),
		ActiveObject: raw.ActiveObject,
		SceneName:    raw.SceneName,
		FrameStart:   raw.FrameStart,
		FrameEnd:     raw.FrameEnd,
		FrameCurrent: raw.FrameCurrent,
		Timestamp:    time.Now(),
	}
	if st.SceneName == "" {
		st.SceneName = "Scene"
	}
	if st.FrameStart == 0 {
		st.FrameStart = 1
	}
	if st.FrameEnd == 0 {
		st.FrameEnd = 250
	}
	if st.FrameCurrent == 0 {
		st.FrameCurrent = 1
	}

	for _, ro := range raw.Objects {
		if ro.Name == "" {
			continue
		}
		if _, dup := st.objects[ro.Name]; dup {
			continue
		}
		obj := Object{
			Name: ro.Name,
			Type: ro.Type,
			Transform: Transform{
				Location: ro.Location,
				Rotation: ro.Rotation,
				Scale:    geom.Vec3{1, 1, 1},
			},
			Data:     ro.Data,
			Visible:  true,
			Selected: ro.Selected,
		}
		if obj.Type == "" {
			obj.Type = "MESH"
		}
		if ro.Scale != nil {
			obj.Transform.Scale = *ro.Scale
		}
		if ro.Visible != nil {
			obj.Visible = *ro.Visible
		}
		st.objects[obj.Name] = obj
		st.order = append(st.order, obj.Name)
	}
	return st
}

// emptyState returns a snapshot with no objects, used by Clear.
func emptyState() *State {
	return NewState(&RawScene{SceneName: "Scene"})
}

// Get returns the named object's snapshot.
func (s *State) Get(name string) (Object, bool) {
	obj, ok := s.objects[name]
	return obj, ok
}

// Len returns the number of objects in the snapshot.
func (s *State) Len() int {
	return len(s.objects)
}

// Names returns object names in snapshot order. The returned slice is
// shared; callers must not mutate it.
func (s *State) Names() []string {
	return s.order
}

// Objects returns all object snapshots in snapshot order.
func (s *State) Objects() []Object {
	out := make([]Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name])
	}
	return out
}
