package raster

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/camera"
	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
)

func splatView() View {
	// fovy 90 on 16 pixels gives a focal length of 8.
	cam := camera.LookAt(r3.Vec{Z: 2}, r3.Vec{}, 90, 16, 16)
	return View{Camera: cam, Background: [3]float32{0.2, 0.3, 0.4}}
}

// twoSplats places one Gaussian near the origin covering the whole image
// and a smaller one behind it on the optical axis.
func twoSplats() *gaussian.Set {
	s := gaussian.NewSet(2, 0)
	s.SetPosition(0, r3.Vec{X: 0.1, Y: 0.05})
	s.SetPosition(1, r3.Vec{Z: -1})
	colors := [2][3]float64{{0.8, 0.2, 0.4}, {0.1, 0.9, 0.5}}
	for i := range 2 {
		for ch := range 3 {
			s.FeaturesDC[3*i+ch] = gaussian.RGBToSH(colors[i][ch])
			s.Scales[3*i+ch] = math.Log(0.75)
		}
		s.Opacities[i] = 2
	}
	return s
}

type pixelWeights struct {
	color []float32
	alpha []float32
}

func randomWeights(rng *rand.Rand, npx int) pixelWeights {
	w := pixelWeights{color: make([]float32, 3*npx), alpha: make([]float32, npx)}
	for i := range w.color {
		w.color[i] = float32(2*rng.Float64() - 1)
	}
	for i := range w.alpha {
		w.alpha[i] = float32(2*rng.Float64() - 1)
	}
	return w
}

func (w pixelWeights) loss(color *ir.Image, alpha *ir.Mask) float64 {
	var l float64
	for i, v := range color.Pix {
		l += float64(w.color[i]) * float64(v)
	}
	if alpha != nil {
		for i, v := range alpha.Pix {
			l += float64(w.alpha[i]) * float64(v)
		}
	}
	return l
}

func TestReference_Render(t *testing.T) {
	ctx := context.Background()
	view := splatView()
	s := twoSplats()
	out, err := Reference{}.Render(ctx, s, view)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, out.Visible)

	// The center is dominated by the front Gaussian.
	c := out.Color.At(8, 7)
	assert.Greater(t, c[0], c[1])
	assert.Greater(t, out.Alpha.At(8, 8), float32(0.9))

	// Behind the camera nothing is drawn.
	s.SetPosition(0, r3.Vec{Z: 5})
	s.SetPosition(1, r3.Vec{Z: 5})
	out, err = Reference{}.Render(ctx, s, view)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, out.Visible)
	assert.Equal(t, float32(0), out.Alpha.At(3, 3))
	assert.Equal(t, view.Background, out.Color.At(3, 3))

	_, err = Reference{}.Render(ctx, s, View{})
	assert.Error(t, err)
}

func TestReference_CompositesFrontToBack(t *testing.T) {
	ctx := context.Background()
	view := splatView()
	s := twoSplats()
	s.Opacities[0] = 8 // nearly opaque front blob
	out, err := Reference{}.Render(ctx, s, view)
	require.NoError(t, err)
	c := out.Color.At(8, 8)
	assert.InDelta(t, 0.8, c[0], 0.05)
	assert.InDelta(t, 0.2, c[1], 0.05)
}

func TestReference_GradientsMatchFiniteDifferences(t *testing.T) {
	ctx := context.Background()
	view := splatView()
	s := twoSplats()
	npx := view.Camera.Width * view.Camera.Height
	w := randomWeights(rand.New(rand.NewSource(7)), npx)

	out, err := Reference{}.Render(ctx, s, view)
	require.NoError(t, err)
	grad := NewSplatGrad(s)
	require.NoError(t, Reference{}.Backward(ctx, s, view, out, w.color, w.alpha, grad))

	const h = 1e-3
	for _, group := range []string{gaussian.GroupXYZ, gaussian.GroupDC, gaussian.GroupOpacity, gaussian.GroupScaling} {
		var values []float64
		for _, a := range s.Attributes() {
			if a.Name == group {
				values = *a.Values
			}
		}
		analytic := grad.Group(group)
		for i := range values {
			orig := values[i]
			values[i] = orig + h
			up, err := Reference{}.Render(ctx, s, view)
			require.NoError(t, err)
			values[i] = orig - h
			down, err := Reference{}.Render(ctx, s, view)
			require.NoError(t, err)
			values[i] = orig

			numeric := (w.loss(up.Color, up.Alpha) - w.loss(down.Color, down.Alpha)) / (2 * h)
			assert.InDelta(t, numeric, analytic[i], 0.03*math.Abs(numeric)+2e-3, "%s[%d]", group, i)
		}
	}

	for _, v := range grad.Rotations {
		assert.Zero(t, v)
	}
	assert.NotZero(t, grad.Viewspace[0])
}

func TestReference_BackwardValidatesInputs(t *testing.T) {
	ctx := context.Background()
	view := splatView()
	s := twoSplats()
	out, err := Reference{}.Render(ctx, s, view)
	require.NoError(t, err)

	err = Reference{}.Backward(ctx, s, view, out, make([]float32, 3), nil, NewSplatGrad(s))
	assert.ErrorContains(t, err, "color gradient")

	err = Reference{}.Backward(ctx, s, view, &SplatOutput{}, nil, nil, NewSplatGrad(s))
	assert.Error(t, err)
}

func TestSplatGrad_Group(t *testing.T) {
	s := twoSplats()
	g := NewSplatGrad(s)
	g.Positions[0] = 2
	assert.Equal(t, 2.0, g.Group(gaussian.GroupXYZ)[0])
	assert.Nil(t, g.Group("unknown"))
}

// bigTriangle covers the whole view with UVs u = 0.5 + x/20, v = 0.5 + y/20.
func bigTriangle() *mesh.Mesh {
	return &mesh.Mesh{
		Positions: []float64{-10, -10, 0, 10, -10, 0, 0, 10, 0},
		UVs:       []float64{0, 0, 1, 0, 0.5, 1},
		Faces:     []uint32{0, 1, 2},
	}
}

// linearTexture varies linearly with the texel index so bilinear sampling
// is linear in UV away from the borders.
func linearTexture() *ir.Image {
	tex := ir.NewImage(4, 4)
	for y := range 4 {
		for x := range 4 {
			tex.Set(x, y, [3]float32{0.1 + 0.2*float32(x), 0.2 + 0.15*float32(y), 0.3 + 0.1*float32(x) - 0.05*float32(y)})
		}
	}
	return tex
}

func meshView() View {
	cam := camera.LookAt(r3.Vec{Z: 3}, r3.Vec{}, 60, 8, 8)
	return View{Camera: cam, Background: [3]float32{1, 1, 1}}
}

func TestReferenceMesh_Render(t *testing.T) {
	ctx := context.Background()
	out, err := ReferenceMesh{}.Render(ctx, bigTriangle(), linearTexture(), meshView())
	require.NoError(t, err)
	for _, a := range out.Alpha.Pix {
		assert.Equal(t, float32(1), a)
	}

	// A small triangle off to the side leaves background pixels.
	small := &mesh.Mesh{
		Positions: []float64{0.5, 0.5, 0, 1.5, 0.5, 0, 0.5, 1.5, 0},
		UVs:       []float64{0, 0, 1, 0, 0, 1},
		Faces:     []uint32{0, 1, 2},
	}
	out, err = ReferenceMesh{}.Render(ctx, small, linearTexture(), meshView())
	require.NoError(t, err)
	assert.Equal(t, float32(0), out.Alpha.At(0, 7))
	assert.Equal(t, [3]float32{1, 1, 1}, out.Color.At(0, 7))

	_, err = ReferenceMesh{}.Render(ctx, &mesh.Mesh{Positions: []float64{0, 0, 0}}, linearTexture(), meshView())
	assert.ErrorContains(t, err, "texture coordinates")
}

func TestReferenceMesh_DepthTest(t *testing.T) {
	ctx := context.Background()
	m := &mesh.Mesh{
		Positions: []float64{
			-10, -10, -1, 10, -10, -1, 0, 10, -1, // far
			-10, -10, 0.5, 10, -10, 0.5, 0, 10, 0.5, // near
		},
		UVs:   []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9},
		Faces: []uint32{0, 1, 2, 3, 4, 5},
	}
	tex := linearTexture()
	out, err := ReferenceMesh{}.Render(ctx, m, tex, meshView())
	require.NoError(t, err)
	want := mesh.Bilinear(tex, [2]float64{0.9, 0.9}).Color
	assert.InDelta(t, want[0], out.Color.At(4, 4)[0], 1e-6)
}

func TestReferenceMesh_GradientsMatchFiniteDifferences(t *testing.T) {
	ctx := context.Background()
	view := meshView()
	m := bigTriangle()
	tex := linearTexture()
	npx := view.Camera.Width * view.Camera.Height
	w := randomWeights(rand.New(rand.NewSource(3)), npx)

	out, err := ReferenceMesh{}.Render(ctx, m, tex, view)
	require.NoError(t, err)
	grad := NewMeshGrad(m, tex)
	require.NoError(t, ReferenceMesh{}.Backward(ctx, m, tex, view, out, w.color, grad))

	fd := func(values []float64, i int, h float64) float64 {
		orig := values[i]
		values[i] = orig + h
		up, err := ReferenceMesh{}.Render(ctx, m, tex, view)
		require.NoError(t, err)
		values[i] = orig - h
		down, err := ReferenceMesh{}.Render(ctx, m, tex, view)
		require.NoError(t, err)
		values[i] = orig
		return (w.loss(up.Color, nil) - w.loss(down.Color, nil)) / (2 * h)
	}

	for i := range m.Positions {
		numeric := fd(m.Positions, i, 1e-3)
		assert.InDelta(t, numeric, grad.Positions[i], 0.03*math.Abs(numeric)+2e-3, "position[%d]", i)
	}

	for _, i := range []int{15, 16, 20, 27} {
		orig := tex.Pix[i]
		tex.Pix[i] = orig + 0.01
		up, err := ReferenceMesh{}.Render(ctx, m, tex, view)
		require.NoError(t, err)
		tex.Pix[i] = orig - 0.01
		down, err := ReferenceMesh{}.Render(ctx, m, tex, view)
		require.NoError(t, err)
		tex.Pix[i] = orig
		numeric := (w.loss(up.Color, nil) - w.loss(down.Color, nil)) / 0.02
		assert.InDelta(t, numeric, grad.Texture[i], 0.01*math.Abs(numeric)+1e-3, "texture[%d]", i)
	}
}
