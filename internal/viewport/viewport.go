// Package viewport owns the set of independently configured viewports and
// the camera-navigation math behind orbit/pan/zoom/frame operations.
package viewport

import (
	"github.com/miktos/realtime-viewer/internal/geom"
)

// Mode is a viewport display mode.
type Mode string

const (
	ModeSolid     Mode = "solid"
	ModeWireframe Mode = "wireframe"
	ModeMaterial  Mode = "material"
	ModeRendered  Mode = "rendered"
)

// Projection is a camera projection type.
type Projection string

const (
	Perspective  Projection = "perspective"
	Orthographic Projection = "orthographic"
)

// Settings carries the per-viewport display configuration.
type Settings struct {
	Name             string     `json:"name"`
	Mode             Mode       `json:"mode"`
	Projection       Projection `json:"projection"`
	ShowGrid         bool       `json:"show_grid"`
	ShowAxes         bool       `json:"show_axes"`
	ShowGizmos       bool       `json:"show_gizmos"`
	Background       [4]float64 `json:"background_color"`
	GridSize         float64    `json:"grid_size"`
	GridSubdivisions int        `json:"grid_subdivisions"`
}

func defaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		Mode:             ModeSolid,
		Projection:       Perspective,
		ShowGrid:         true,
		ShowAxes:         true,
		ShowGizmos:       true,
		Background:       [4]float64{0.2, 0.2, 0.2, 1.0},
		GridSize:         1.0,
		GridSubdivisions: 10,
	}
}

// Camera is the navigable camera state of one viewport. Distance always
// equals |Position - Target| after every mutation.
type Camera struct {
	Position geom.Vec3 `json:"position"`
	Target   geom.Vec3 `json:"target"`
	Up       geom.Vec3 `json:"up"`
	Distance float64   `json:"distance"`

	ZoomSpeed   float64 `json:"zoom_speed"`
	PanSpeed    float64 `json:"pan_speed"`
	OrbitSpeed  float64 `json:"orbit_speed"`
	MinDistance float64 `json:"min_distance"`
	MaxDistance float64 `json:"max_distance"`
}

// defaultPerspectivePosition is the stock diagonal view.
var defaultPerspectivePosition = geom.Vec3{7.5, -7.5, 5.5}

func defaultCamera() Camera {
	c := Camera{
		Position:    defaultPerspectivePosition,
		Target:      geom.Vec3{0, 0, 0},
		Up:          geom.Vec3{0, 0, 1},
		ZoomSpeed:   1.2,
		PanSpeed:    0.01,
		OrbitSpeed:  0.005,
		MinDistance: 0.1,
		MaxDistance: 1000.0,
	}
	c.Distance = geom.Dist(c.Position, c.Target)
	return c
}

// Viewport is one rectangular screen region with its own camera and display
// settings.
type Viewport struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Settings Settings `json:"settings"`
	Camera   Camera   `json:"camera"`
	Active   bool     `json:"active"`
	Visible  bool     `json:"visible"`
}

func newViewport(id, name string, width, height int) *Viewport {
	return &Viewport{
		ID:       id,
		Name:     name,
		Width:    width,
		Height:   height,
		Settings: defaultSettings(name),
		Camera:   defaultCamera(),
		Active:   true,
		Visible:  true,
	}
}
