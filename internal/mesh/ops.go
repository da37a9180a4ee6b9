package mesh

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// FitSize is the edge length of the box Resize fits meshes into.
const FitSize = 1.2

// Resize centers the mesh at the origin and scales it uniformly so its
// largest bounding-box edge is FitSize.
func (m *Mesh) Resize() {
	if m.VertexCount() == 0 {
		return
	}
	lo, hi := m.Bounds()
	center := r3.Scale(0.5, r3.Add(lo, hi))
	ext := r3.Sub(hi, lo)
	size := math.Max(ext.X, math.Max(ext.Y, ext.Z))
	scale := 1.0
	if size > 0 {
		scale = FitSize / size
	}
	for i := range m.VertexCount() {
		p := r3.Scale(scale, r3.Sub(m.Position(i), center))
		m.Positions[3*i], m.Positions[3*i+1], m.Positions[3*i+2] = p.X, p.Y, p.Z
	}
}

// Renormal recomputes vertex normals as the area-weighted average of the
// adjacent face normals.
func (m *Mesh) Renormal() {
	acc := make([]r3.Vec, m.VertexCount())
	for t := range m.TriangleCount() {
		tri := m.Triangle(t)
		a, b, c := m.Position(tri[0]), m.Position(tri[1]), m.Position(tri[2])
		// The cross product's length is twice the area.
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		for _, v := range tri {
			acc[v] = r3.Add(acc[v], n)
		}
	}
	m.Normals = make([]float64, 3*len(acc))
	for i, n := range acc {
		if r3.Norm(n) < 1e-20 {
			n = r3.Vec{Z: 1}
		}
		n = r3.Unit(n)
		m.Normals[3*i], m.Normals[3*i+1], m.Normals[3*i+2] = n.X, n.Y, n.Z
	}
}

// Retex drops the texture and lays every triangle out in its own cell of a
// square UV grid. Vertices are unshared so each corner gets its own UV.
func (m *Mesh) Retex() {
	n := m.TriangleCount()
	grid := int(math.Ceil(math.Sqrt(float64(max(n, 1)))))
	cell := 1 / float64(grid)
	pad := 0.1 * cell

	positions := make([]float64, 0, 9*n)
	normals := make([]float64, 0, 9*n)
	uvs := make([]float64, 0, 6*n)
	faces := make([]uint32, 0, 3*n)
	hasNormals := len(m.Normals) == len(m.Positions)

	for t := range n {
		u0 := float64(t%grid) * cell
		v0 := float64(t/grid) * cell
		corners := [3][2]float64{
			{u0 + pad, v0 + pad},
			{u0 + cell - pad, v0 + pad},
			{u0 + pad, v0 + cell - pad},
		}
		for k, v := range m.Triangle(t) {
			positions = append(positions, m.Positions[3*v:3*v+3]...)
			if hasNormals {
				normals = append(normals, m.Normals[3*v:3*v+3]...)
			}
			uvs = append(uvs, corners[k][0], corners[k][1])
			faces = append(faces, uint32(3*t+k))
		}
	}

	m.Positions = positions
	m.Normals = normals
	if !hasNormals {
		m.Normals = nil
	}
	m.UVs = uvs
	m.Faces = faces
	m.Texture = nil
}

// SampleSurface draws n points uniformly over the surface area, coloured by
// the texture at each point.
func (m *Mesh) SampleSurface(rng *rand.Rand, n int) ([]r3.Vec, [][3]float64) {
	tris := m.TriangleCount()
	if tris == 0 || n <= 0 {
		return nil, nil
	}
	cdf := make([]float64, tris)
	for t := range tris {
		cdf[t] = m.TriangleArea(t)
	}
	floats.CumSum(cdf, cdf)
	total := cdf[tris-1]

	hasUV := len(m.UVs) == 2*m.VertexCount()
	points := make([]r3.Vec, n)
	colors := make([][3]float64, n)
	for i := range n {
		t := sort.SearchFloat64s(cdf, rng.Float64()*total)
		if t >= tris {
			t = tris - 1
		}
		tri := m.Triangle(t)

		r1 := math.Sqrt(rng.Float64())
		r2 := rng.Float64()
		w := [3]float64{1 - r1, r1 * (1 - r2), r1 * r2}

		var p r3.Vec
		var uv [2]float64
		for k, v := range tri {
			p = r3.Add(p, r3.Scale(w[k], m.Position(v)))
			if hasUV {
				uv[0] += w[k] * m.UVs[2*v]
				uv[1] += w[k] * m.UVs[2*v+1]
			}
		}
		points[i] = p
		if hasUV {
			colors[i] = m.SampleTexture(uv)
		} else {
			colors[i] = [3]float64{0.5, 0.5, 0.5}
		}
	}
	return points, colors
}
