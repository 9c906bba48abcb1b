package viewport

import (
	"math"

	"github.com/miktos/realtime-viewer/internal/geom"
)

// phi is clamped just inside (0, π) so the camera can never line up exactly
// with the pole and lose its azimuth.
const (
	phiMin = 0.01
	phiMax = math.Pi - 0.01
)

const defaultFOV = 45.0 * math.Pi / 180.0

// Bounds is an axis-aligned box around the objects to frame.
type Bounds struct {
	Min geom.Vec3 `json:"min"`
	Max geom.Vec3 `json:"max"`
}

// orbit rotates the camera around its target by converting the offset to
// spherical coordinates, nudging azimuth and polar angle, and converting
// back at the same radius.
func (c *Camera) orbit(dx, dy, sensitivity float64) {
	offset := c.Position.Sub(c.Target)
	r := offset.Length()
	if r == 0 {
		return
	}

	theta := math.Atan2(offset[1], offset[0])
	phi := math.Acos(offset[2] / r)

	theta += dx * c.OrbitSpeed * sensitivity
	phi += dy * c.OrbitSpeed * sensitivity
	phi = geom.Clamp(phi, phiMin, phiMax)

	c.Position = c.Target.Add(geom.Vec3{
		r * math.Sin(phi) * math.Cos(theta),
		r * math.Sin(phi) * math.Sin(theta),
		r * math.Cos(phi),
	})
	c.Distance = r
}

// pan translates position and target together across the view plane. The
// move is scaled by the current distance so panning feels uniform at any
// zoom level.
func (c *Camera) pan(dx, dy, sensitivity float64) {
	forward := c.Target.Sub(c.Position).Normalized()
	right := forward.Cross(c.Up).Normalized()
	actualUp := right.Cross(forward)

	scale := c.Distance * c.PanSpeed * sensitivity
	move := right.Scale(-dx).Add(actualUp.Scale(dy)).Scale(scale)

	c.Position = c.Position.Add(move)
	c.Target = c.Target.Add(move)
}

// zoom moves the camera along its view direction with an exponential speed
// curve, clamped to the distance bounds.
func (c *Camera) zoom(delta, sensitivity float64) {
	factor := math.Pow(c.ZoomSpeed, -delta*sensitivity)
	newDistance := geom.Clamp(c.Distance*factor, c.MinDistance, c.MaxDistance)
	if newDistance == c.Distance {
		return
	}

	dir := c.Position.Sub(c.Target)
	if dir.Length() == 0 {
		return
	}
	c.Position = c.Target.Add(dir.Normalized().Scale(newDistance))
	c.Distance = newDistance
}

// frame re-centers the camera on the bounds' midpoint at a distance chosen
// to fit the largest extent, preserving the current view direction. A
// camera sitting exactly on its target falls back to a diagonal direction.
func (c *Camera) frame(bounds Bounds, projection Projection) {
	center := bounds.Min.Add(bounds.Max).Scale(0.5)
	size := math.Max(bounds.Max[0]-bounds.Min[0],
		math.Max(bounds.Max[1]-bounds.Min[1], bounds.Max[2]-bounds.Min[2]))

	var distance float64
	if projection == Perspective {
		// 1.5x for padding around the framed extent.
		distance = (size / 2) / math.Tan(defaultFOV/2) * 1.5
	} else {
		distance = size * 2
	}

	dir := c.Position.Sub(c.Target)
	if dir.Length() > 0 {
		dir = dir.Normalized()
	} else {
		dir = geom.Vec3{1, 1, 1}.Normalized()
	}

	c.Target = center
	c.Position = center.Add(dir.Scale(distance))
	c.Distance = distance
}

// setViewDirection repositions the camera along dir at the current
// distance, choosing an up vector that cannot line up with the view axis.
func (c *Camera) setViewDirection(dir geom.Vec3) {
	dir = dir.Normalized()
	c.Position = c.Target.Add(dir.Scale(c.Distance))
	if math.Abs(dir[2]) > 0.9 {
		c.Up = geom.Vec3{0, 1, 0}
	} else {
		c.Up = geom.Vec3{0, 0, 1}
	}
}

// reset restores the canonical camera for a viewport id: fixed axis-aligned
// views for the orthographic quad viewports, the stock diagonal otherwise.
func (c *Camera) reset(viewportID string) {
	switch viewportID {
	case "top":
		c.Position = geom.Vec3{0, 0, 10}
	case "front":
		c.Position = geom.Vec3{0, -10, 0}
	case "side":
		c.Position = geom.Vec3{10, 0, 0}
	default:
		c.Position = defaultPerspectivePosition
	}
	c.Target = geom.Vec3{0, 0, 0}
	c.Up = geom.Vec3{0, 0, 1}
	c.Distance = geom.Dist(c.Position, c.Target)
}
