// Package mesh holds triangle meshes and their file codecs.
package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Mesh is an indexed triangle mesh. Every vertex carries its own position
// and, when present, normal and UV, so attribute slices share one index.
type Mesh struct {
	Positions []float64 // 3 per vertex
	Normals   []float64 // 3 per vertex, or empty
	UVs       []float64 // 2 per vertex, or empty
	Faces     []uint32  // 3 per triangle
	// Texture is the albedo map sampled through UVs, or nil.
	Texture *ir.Image
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Positions) / 3 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Faces) / 3 }

// Position returns vertex i.
func (m *Mesh) Position(i int) r3.Vec {
	return r3.Vec{X: m.Positions[3*i], Y: m.Positions[3*i+1], Z: m.Positions[3*i+2]}
}

// UV returns the texture coordinate of vertex i.
func (m *Mesh) UV(i int) [2]float64 {
	return [2]float64{m.UVs[2*i], m.UVs[2*i+1]}
}

// Triangle returns the vertex indices of triangle t.
func (m *Mesh) Triangle(t int) [3]int {
	return [3]int{int(m.Faces[3*t]), int(m.Faces[3*t+1]), int(m.Faces[3*t+2])}
}

// Clone returns a deep copy; the texture is copied too.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Positions: append([]float64(nil), m.Positions...),
		Normals:   append([]float64(nil), m.Normals...),
		UVs:       append([]float64(nil), m.UVs...),
		Faces:     append([]uint32(nil), m.Faces...),
	}
	if m.Texture != nil {
		out.Texture = m.Texture.Clone()
	}
	return out
}

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() (lo, hi r3.Vec) {
	lo = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := range m.VertexCount() {
		p := m.Position(i)
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	return lo, hi
}

// TriangleArea returns the area of triangle t.
func (m *Mesh) TriangleArea(t int) float64 {
	tri := m.Triangle(t)
	a, b, c := m.Position(tri[0]), m.Position(tri[1]), m.Position(tri[2])
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// SampleTexture returns the bilinearly filtered texture colour at uv.
// V runs bottom to top. Without a texture the mesh is mid grey.
func (m *Mesh) SampleTexture(uv [2]float64) [3]float64 {
	if m.Texture == nil {
		return [3]float64{0.5, 0.5, 0.5}
	}
	s := Bilinear(m.Texture, uv)
	return [3]float64{s.Color[0], s.Color[1], s.Color[2]}
}
