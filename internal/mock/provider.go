// Package mock provides a demo scene provider so the whole pipeline can run
// without the authoring application attached.
package mock

import (
	"context"
	"math"
	"time"

	"github.com/miktos/realtime-viewer/internal/geom"
	"github.com/miktos/realtime-viewer/internal/scene"
)

// Provider generates an animated demo scene: a cube orbiting the origin, a
// sphere pulsing in place, a key light, and a static camera object. Each
// call advances the animation by wall-clock time.
type Provider struct {
	start time.Time

	// OrbitPeriod is how long the cube takes for one lap.
	OrbitPeriod time.Duration
	// PulsePeriod is the sphere's scale cycle.
	PulsePeriod time.Duration
}

func NewProvider() *Provider {
	return &Provider{
		start:       time.Now(),
		OrbitPeriod: 8 * time.Second,
		PulsePeriod: 3 * time.Second,
	}
}

func (p *Provider) Scene(ctx context.Context) (*scene.RawScene, error) {
	return p.SceneAt(time.Since(p.start)), nil
}

// SceneAt builds the demo scene at a given animation offset. Split out so
// tests can pin exact frames.
func (p *Provider) SceneAt(elapsed time.Duration) *scene.RawScene {
	orbit := 2 * math.Pi * float64(elapsed) / float64(p.OrbitPeriod)
	pulse := 1.0 + 0.3*math.Sin(2*math.Pi*float64(elapsed)/float64(p.PulsePeriod))

	sphereScale := geom.Vec3{pulse, pulse, pulse}

	return &scene.RawScene{
		SceneName:    "Demo",
		ActiveObject: "Cube",
		FrameStart:   1,
		FrameEnd:     250,
		FrameCurrent: 1 + int(elapsed/time.Second*24)%250,
		Objects: []scene.RawObject{
			{
				Name:     "Cube",
				Type:     "MESH",
				Location: geom.Vec3{3 * math.Cos(orbit), 3 * math.Sin(orbit), 1},
				Rotation: geom.Vec3{0, 0, orbit},
				Selected: true,
			},
			{
				Name:     "Sphere",
				Type:     "MESH",
				Location: geom.Vec3{0, 0, 1},
				Scale:    &sphereScale,
			},
			{
				Name:     "Key",
				Type:     "LIGHT",
				Location: geom.Vec3{4, -4, 6},
				Data:     map[string]any{"light_type": "SUN", "energy": 3.0},
			},
			{
				Name:     "Camera",
				Type:     "CAMERA",
				Location: geom.Vec3{7.5, -7.5, 5.5},
				Rotation: geom.Vec3{1.1, 0, 0.785},
			},
		},
	}
}
