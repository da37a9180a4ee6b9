package mesh

import (
	"fmt"

	"github.com/EliCDavis/polyform/modeling"
	"github.com/EliCDavis/vector/vector2"
	"github.com/EliCDavis/vector/vector3"
)

// model converts m to a polyform triangle mesh for the PLY and OBJ codecs.
// Normals and UVs are attached only when every vertex has one.
func (m *Mesh) model() modeling.Mesh {
	n := m.VertexCount()
	indices := make([]int, len(m.Faces))
	for i, f := range m.Faces {
		indices[i] = int(f)
	}
	pos := make([]vector3.Float64, n)
	for i := range n {
		pos[i] = vector3.New(m.Positions[3*i], m.Positions[3*i+1], m.Positions[3*i+2])
	}
	out := modeling.NewTriangleMesh(indices).SetFloat3Attribute(modeling.PositionAttribute, pos)

	if len(m.Normals) == len(m.Positions) && n > 0 {
		nrm := make([]vector3.Float64, n)
		for i := range n {
			nrm[i] = vector3.New(m.Normals[3*i], m.Normals[3*i+1], m.Normals[3*i+2])
		}
		out = out.SetFloat3Attribute(modeling.NormalAttribute, nrm)
	}
	if len(m.UVs) == 2*n && n > 0 {
		uvs := make([]vector2.Float64, n)
		for i := range n {
			uvs[i] = vector2.New(m.UVs[2*i], m.UVs[2*i+1])
		}
		out = out.SetFloat2Attribute(modeling.TexCoordAttribute, uvs)
	}
	return out
}

// fromModel copies a decoded polyform mesh into a Mesh. Point clouds come
// back without faces.
func fromModel(pm modeling.Mesh) (*Mesh, error) {
	if !pm.HasFloat3Attribute(modeling.PositionAttribute) {
		return nil, fmt.Errorf("mesh has no vertex positions")
	}
	m := &Mesh{}
	pos := pm.Float3Attribute(modeling.PositionAttribute)
	for i := range pos.Len() {
		p := pos.At(i)
		m.Positions = append(m.Positions, p.X(), p.Y(), p.Z())
	}
	if pm.HasFloat3Attribute(modeling.NormalAttribute) {
		nrm := pm.Float3Attribute(modeling.NormalAttribute)
		for i := range nrm.Len() {
			v := nrm.At(i)
			m.Normals = append(m.Normals, v.X(), v.Y(), v.Z())
		}
	}
	if pm.HasFloat2Attribute(modeling.TexCoordAttribute) {
		uvs := pm.Float2Attribute(modeling.TexCoordAttribute)
		for i := range uvs.Len() {
			v := uvs.At(i)
			m.UVs = append(m.UVs, v.X(), v.Y())
		}
	}
	if len(m.Normals) != len(m.Positions) {
		m.Normals = nil
	}
	if len(m.UVs) != 2*m.VertexCount() {
		m.UVs = nil
	}

	if pm.Topology() != modeling.TriangleTopology {
		return m, nil
	}
	indices := pm.Indices()
	for i := range indices.Len() {
		v := indices.At(i)
		if v < 0 || v >= m.VertexCount() {
			return nil, fmt.Errorf("face index %d out of range (%d vertices)", v, m.VertexCount())
		}
		m.Faces = append(m.Faces, uint32(v))
	}
	return m, nil
}
