// Package camera turns orbit poses into pinhole cameras.
package camera

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/ir"
)

var worldUp = r3.Vec{Y: 1}

// Camera is a pinhole camera looking at an orbit center.
// View space has X to the right, Y up and Z along the viewing direction,
// so visible points have positive Z.
type Camera struct {
	Position r3.Vec
	Right    r3.Vec
	Up       r3.Vec
	Forward  r3.Vec

	Width  int
	Height int
	// Focal is the focal length in pixels.
	Focal float64
}

// FromPose places a camera on the orbit described by p.
// Azimuth 0 looks down -Z from +Z; elevation raises the camera toward +Y.
func FromPose(p ir.CameraPose, fovyDeg float64, width, height int) Camera {
	el := p.Elevation * math.Pi / 180
	az := p.Azimuth * math.Pi / 180
	center := r3.Vec{X: p.Center[0], Y: p.Center[1], Z: p.Center[2]}

	offset := r3.Vec{
		X: math.Cos(el) * math.Sin(az),
		Y: math.Sin(el),
		Z: math.Cos(el) * math.Cos(az),
	}
	pos := r3.Add(center, r3.Scale(p.Radius, offset))
	return LookAt(pos, center, fovyDeg, width, height)
}

// LookAt builds a camera at eye facing target.
func LookAt(eye, target r3.Vec, fovyDeg float64, width, height int) Camera {
	forward := r3.Unit(r3.Sub(target, eye))
	right := r3.Cross(forward, worldUp)
	if r3.Norm(right) < 1e-9 {
		// Looking straight up or down.
		right = r3.Vec{X: 1}
	}
	right = r3.Unit(right)
	up := r3.Cross(right, forward)

	return Camera{
		Position: eye,
		Right:    right,
		Up:       up,
		Forward:  forward,
		Width:    width,
		Height:   height,
		Focal:    FocalLength(fovyDeg, height),
	}
}

// FocalLength converts a vertical field of view to a focal length in pixels.
func FocalLength(fovyDeg float64, height int) float64 {
	half := fovyDeg * math.Pi / 360
	if half <= 0 {
		return math.Inf(1)
	}
	return float64(height) / (2 * math.Tan(half))
}

// ToView transforms a world-space point into view space.
func (c Camera) ToView(world r3.Vec) r3.Vec {
	d := r3.Sub(world, c.Position)
	return r3.Vec{X: r3.Dot(d, c.Right), Y: r3.Dot(d, c.Up), Z: r3.Dot(d, c.Forward)}
}

// ViewDirToWorld rotates a view-space direction back into world space.
func (c Camera) ViewDirToWorld(v r3.Vec) r3.Vec {
	return r3.Add(r3.Add(r3.Scale(v.X, c.Right), r3.Scale(v.Y, c.Up)), r3.Scale(v.Z, c.Forward))
}

// Project maps a view-space point to continuous pixel coordinates with the
// origin at the top-left corner. Callers must ensure view.Z > 0.
func (c Camera) Project(view r3.Vec) (u, v float64) {
	u = float64(c.Width)/2 + c.Focal*view.X/view.Z
	v = float64(c.Height)/2 - c.Focal*view.Y/view.Z
	return u, v
}
