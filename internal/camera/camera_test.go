package camera

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/ir"
)

func TestFromPose_FrontView(t *testing.T) {
	c := FromPose(ir.CameraPose{Radius: 2}, 90, 64, 64)

	assert.InDelta(t, 0, c.Position.X, 1e-12)
	assert.InDelta(t, 0, c.Position.Y, 1e-12)
	assert.InDelta(t, 2, c.Position.Z, 1e-12)
	assert.InDelta(t, -1, c.Forward.Z, 1e-12)
	assert.InDelta(t, 1, c.Right.X, 1e-12)
	assert.InDelta(t, 1, c.Up.Y, 1e-12)
	assert.InDelta(t, 32, c.Focal, 1e-9)
}

func TestProject_CenterAndAxes(t *testing.T) {
	c := FromPose(ir.CameraPose{Radius: 2}, 90, 64, 48)

	u, v := c.Project(c.ToView(r3.Vec{}))
	assert.InDelta(t, 32, u, 1e-9)
	assert.InDelta(t, 24, v, 1e-9)

	u, v = c.Project(c.ToView(r3.Vec{X: 0.5}))
	assert.Greater(t, u, 32.0)
	assert.InDelta(t, 24, v, 1e-9)

	_, v = c.Project(c.ToView(r3.Vec{Y: 0.5}))
	assert.Less(t, v, 24.0, "up in world is up in the image")
}

func TestFromPose_AzimuthAndElevation(t *testing.T) {
	side := FromPose(ir.CameraPose{Radius: 3, Azimuth: 90}, 49.1, 32, 32)
	assert.InDelta(t, 3, side.Position.X, 1e-9)
	assert.InDelta(t, 0, side.Position.Z, 1e-9)

	top := FromPose(ir.CameraPose{Radius: 1, Elevation: 90}, 49.1, 32, 32)
	assert.InDelta(t, 1, top.Position.Y, 1e-9)
	for _, x := range []float64{top.Right.X, top.Right.Y, top.Right.Z, top.Up.X, top.Up.Y, top.Up.Z} {
		assert.False(t, math.IsNaN(x))
	}

	shifted := FromPose(ir.CameraPose{Radius: 1, Center: [3]float64{1, 2, 3}}, 49.1, 32, 32)
	assert.InDelta(t, 4, shifted.Position.Z, 1e-9)
	assert.InDelta(t, 1, shifted.ToView(r3.Vec{X: 1, Y: 2, Z: 3}).Z, 1e-9)
}

func TestViewDirToWorld_Inverse(t *testing.T) {
	c := FromPose(ir.CameraPose{Radius: 2, Elevation: 20, Azimuth: 133}, 60, 16, 16)
	d := r3.Vec{X: 0.3, Y: -0.2, Z: 0.9}
	w := c.ViewDirToWorld(d)
	back := r3.Vec{X: r3.Dot(w, c.Right), Y: r3.Dot(w, c.Up), Z: r3.Dot(w, c.Forward)}
	assert.InDelta(t, d.X, back.X, 1e-12)
	assert.InDelta(t, d.Y, back.Y, 1e-12)
	assert.InDelta(t, d.Z, back.Z, 1e-12)
}
