package raster

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
)

// ReferenceMesh is a CPU z-buffer rasterizer for textured meshes.
//
// Attributes are interpolated with screen-space (affine) barycentrics and
// the texture is sampled bilinearly. Both windings are drawn. Backward
// yields exact texture gradients and vertex gradients through the
// barycentrics; coverage and depth order are treated as constant.
type ReferenceMesh struct{}

var _ MeshRasterizer = ReferenceMesh{}

type meshFrame struct {
	w, h   int
	view   []r3.Vec     // per vertex
	screen [][2]float64 // per vertex
	tri    []int32      // per pixel, -1 for background
	bary   [][3]float64 // per pixel
	sample []mesh.Sample
}

func (ReferenceMesh) Render(_ context.Context, m *mesh.Mesh, tex *ir.Image, view View) (*MeshOutput, error) {
	cam := view.Camera
	if cam.Width <= 0 || cam.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", cam.Width, cam.Height)
	}
	if len(m.UVs) != 2*m.VertexCount() {
		return nil, fmt.Errorf("mesh has no texture coordinates")
	}
	if tex == nil || tex.Width == 0 || tex.Height == 0 {
		return nil, fmt.Errorf("empty texture")
	}

	npx := cam.Width * cam.Height
	f := &meshFrame{
		w:      cam.Width,
		h:      cam.Height,
		view:   make([]r3.Vec, m.VertexCount()),
		screen: make([][2]float64, m.VertexCount()),
		tri:    make([]int32, npx),
		bary:   make([][3]float64, npx),
		sample: make([]mesh.Sample, npx),
	}
	for i := range m.VertexCount() {
		f.view[i] = cam.ToView(m.Position(i))
		if f.view[i].Z >= nearPlane {
			u, v := cam.Project(f.view[i])
			f.screen[i] = [2]float64{u, v}
		}
	}
	depth := make([]float64, npx)
	for p := range npx {
		f.tri[p] = -1
		depth[p] = math.Inf(1)
	}

	for t := range m.TriangleCount() {
		idx := m.Triangle(t)
		if f.view[idx[0]].Z < nearPlane || f.view[idx[1]].Z < nearPlane || f.view[idx[2]].Z < nearPlane {
			continue
		}
		s0, s1, s2 := f.screen[idx[0]], f.screen[idx[1]], f.screen[idx[2]]
		e1 := [2]float64{s1[0] - s0[0], s1[1] - s0[1]}
		e2 := [2]float64{s2[0] - s0[0], s2[1] - s0[1]}
		det := e1[0]*e2[1] - e1[1]*e2[0]
		if math.Abs(det) < 1e-12 {
			continue
		}
		x0 := max(0, int(math.Floor(min(s0[0], s1[0], s2[0]))))
		x1 := min(cam.Width-1, int(math.Ceil(max(s0[0], s1[0], s2[0]))))
		y0 := max(0, int(math.Floor(min(s0[1], s1[1], s2[1]))))
		y1 := min(cam.Height-1, int(math.Ceil(max(s0[1], s1[1], s2[1]))))

		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				d := [2]float64{float64(x) + 0.5 - s0[0], float64(y) + 0.5 - s0[1]}
				b1 := (d[0]*e2[1] - d[1]*e2[0]) / det
				b2 := (e1[0]*d[1] - e1[1]*d[0]) / det
				b0 := 1 - b1 - b2
				if b0 < 0 || b1 < 0 || b2 < 0 {
					continue
				}
				z := b0*f.view[idx[0]].Z + b1*f.view[idx[1]].Z + b2*f.view[idx[2]].Z
				p := y*cam.Width + x
				if z >= depth[p] {
					continue
				}
				depth[p] = z
				f.tri[p] = int32(t)
				f.bary[p] = [3]float64{b0, b1, b2}
			}
		}
	}

	out := &MeshOutput{
		Color: ir.NewImage(cam.Width, cam.Height),
		Alpha: ir.NewMask(cam.Width, cam.Height),
		cache: f,
	}
	for p := range npx {
		x, y := p%cam.Width, p/cam.Width
		if f.tri[p] < 0 {
			out.Color.Set(x, y, view.Background)
			continue
		}
		idx := m.Triangle(int(f.tri[p]))
		b := f.bary[p]
		var uv [2]float64
		for k, v := range idx {
			uv[0] += b[k] * m.UVs[2*v]
			uv[1] += b[k] * m.UVs[2*v+1]
		}
		f.sample[p] = mesh.Bilinear(tex, uv)
		c := f.sample[p].Color
		out.Color.Set(x, y, [3]float32{float32(c[0]), float32(c[1]), float32(c[2])})
		out.Alpha.Set(x, y, 1)
	}
	return out, nil
}

func (ReferenceMesh) Backward(_ context.Context, m *mesh.Mesh, tex *ir.Image, view View, out *MeshOutput, dColor []float32, grad *MeshGrad) error {
	f, ok := out.cache.(*meshFrame)
	if !ok {
		return fmt.Errorf("output was not produced by the reference mesh rasterizer")
	}
	cam := view.Camera
	npx := cam.Width * cam.Height
	if len(dColor) != 3*npx {
		return fmt.Errorf("color gradient has %d values, want %d", len(dColor), 3*npx)
	}
	if len(grad.Texture) != len(tex.Pix) {
		return fmt.Errorf("texture gradient has %d values, want %d", len(grad.Texture), len(tex.Pix))
	}
	withGeometry := len(grad.Positions) == len(m.Positions)
	dScreen := make([][2]float64, m.VertexCount())

	for p := range npx {
		if f.tri[p] < 0 {
			continue
		}
		dc := [3]float64{float64(dColor[3*p]), float64(dColor[3*p+1]), float64(dColor[3*p+2])}
		s := &f.sample[p]
		for k, texel := range s.Texels {
			for ch := range 3 {
				grad.Texture[3*texel+ch] += dc[ch] * s.Weights[k]
			}
		}
		if !withGeometry {
			continue
		}

		idx := m.Triangle(int(f.tri[p]))
		s0, s1, s2 := f.screen[idx[0]], f.screen[idx[1]], f.screen[idx[2]]
		e1 := [2]float64{s1[0] - s0[0], s1[1] - s0[1]}
		e2 := [2]float64{s2[0] - s0[0], s2[1] - s0[1]}
		det := e1[0]*e2[1] - e1[1]*e2[0]
		// Gradients of each barycentric with respect to the pixel position.
		db1 := [2]float64{e2[1] / det, -e2[0] / det}
		db2 := [2]float64{-e1[1] / det, e1[0] / det}
		db := [3][2]float64{{-db1[0] - db2[0], -db1[1] - db2[1]}, db1, db2}

		var g [2]float64
		for j, v := range idx {
			var dLdb float64
			for ch := range 3 {
				dLdb += dc[ch] * (s.DU[ch]*m.UVs[2*v] + s.DV[ch]*m.UVs[2*v+1])
			}
			g[0] += dLdb * db[j][0]
			g[1] += dLdb * db[j][1]
		}
		// Moving vertex k by delta moves every barycentric like moving the
		// pixel by -b_k*delta.
		b := f.bary[p]
		for k, v := range idx {
			dScreen[v][0] -= b[k] * g[0]
			dScreen[v][1] -= b[k] * g[1]
		}
	}

	if !withGeometry {
		return nil
	}
	for i, ds := range dScreen {
		if ds == [2]float64{} {
			continue
		}
		pv := f.view[i]
		z := pv.Z
		dview := r3.Vec{
			X: ds[0] * cam.Focal / z,
			Y: -ds[1] * cam.Focal / z,
			Z: -ds[0]*cam.Focal*pv.X/(z*z) + ds[1]*cam.Focal*pv.Y/(z*z),
		}
		dworld := cam.ViewDirToWorld(dview)
		grad.Positions[3*i] += dworld.X
		grad.Positions[3*i+1] += dworld.Y
		grad.Positions[3*i+2] += dworld.Z
	}
	return nil
}
