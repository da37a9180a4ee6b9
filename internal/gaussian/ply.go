package gaussian

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/EliCDavis/polyform/formats/ply"
	"github.com/EliCDavis/polyform/modeling"
	"github.com/EliCDavis/vector/vector3"
	"github.com/EliCDavis/vector/vector4"
)

// restAttribute names the k-th higher-order SH coefficient, as splat
// viewers expect it in the vertex element.
func restAttribute(k int) string { return fmt.Sprintf("f_rest_%d", k) }

// SavePLY writes s to path, creating parent directories.
func SavePLY(path string, s *Set) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePLY(f, s); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WritePLY encodes s as a binary little-endian point cloud with the usual
// 3DGS vertex properties: x,y,z, f_dc_*, f_rest_*, opacity, scale_*, rot_*.
// Opacities, scales and rotations are stored raw (logit, log and
// unnormalized), as splat viewers expect.
func WritePLY(w io.Writer, s *Set) error {
	return ply.Write(w, s.pointCloud(), ply.BinaryLittleEndian)
}

func (s *Set) pointCloud() modeling.Mesh {
	n := s.Len()
	rest := RestStride(s.SHDegree)
	pos := make([]vector3.Float64, n)
	dc := make([]vector3.Float64, n)
	scale := make([]vector3.Float64, n)
	rot := make([]vector4.Float64, n)
	scalars := map[string][]float64{modeling.OpacityAttribute: append([]float64(nil), s.Opacities...)}
	for k := range rest {
		scalars[restAttribute(k)] = make([]float64, n)
	}

	for i := range n {
		pos[i] = vector3.New(s.Positions[3*i], s.Positions[3*i+1], s.Positions[3*i+2])
		dc[i] = vector3.New(s.FeaturesDC[3*i], s.FeaturesDC[3*i+1], s.FeaturesDC[3*i+2])
		scale[i] = vector3.New(s.Scales[3*i], s.Scales[3*i+1], s.Scales[3*i+2])
		rot[i] = vector4.New(s.Rotations[4*i], s.Rotations[4*i+1], s.Rotations[4*i+2], s.Rotations[4*i+3])
		for k := range rest {
			scalars[restAttribute(k)][i] = s.FeaturesRest[rest*i+k]
		}
	}

	return modeling.NewPointCloud(
		map[string][]vector4.Float64{modeling.RotationAttribute: rot},
		map[string][]vector3.Float64{
			modeling.PositionAttribute: pos,
			modeling.FDCAttribute:      dc,
			modeling.ScaleAttribute:    scale,
		},
		nil,
		scalars,
	)
}

// LoadPLY reads a Gaussian PLY file written by SavePLY or another 3DGS tool.
func LoadPLY(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPLY(f)
}

// ReadPLY decodes a Gaussian PLY stream. The SH degree is inferred from the
// number of f_rest properties.
func ReadPLY(r io.Reader) (*Set, error) {
	m, err := ply.ReadMesh(r)
	if err != nil {
		return nil, err
	}

	restCount := 0
	for m.HasFloat1Attribute(restAttribute(restCount)) {
		restCount++
	}
	degree := -1
	for d := 0; d <= 3; d++ {
		if RestStride(d) == restCount {
			degree = d
		}
	}
	if degree < 0 {
		return nil, fmt.Errorf("%d f_rest properties do not match any SH degree", restCount)
	}

	for _, attr := range []string{modeling.PositionAttribute, modeling.FDCAttribute, modeling.ScaleAttribute} {
		if !m.HasFloat3Attribute(attr) {
			return nil, fmt.Errorf("missing vertex property %s", attr)
		}
	}
	if !m.HasFloat1Attribute(modeling.OpacityAttribute) {
		return nil, fmt.Errorf("missing vertex property %s", modeling.OpacityAttribute)
	}
	if !m.HasFloat4Attribute(modeling.RotationAttribute) {
		return nil, fmt.Errorf("missing vertex property %s", modeling.RotationAttribute)
	}

	pos := m.Float3Attribute(modeling.PositionAttribute)
	dc := m.Float3Attribute(modeling.FDCAttribute)
	scale := m.Float3Attribute(modeling.ScaleAttribute)
	rot := m.Float4Attribute(modeling.RotationAttribute)
	opacity := m.Float1Attribute(modeling.OpacityAttribute)

	s := NewSet(pos.Len(), degree)
	for i := range s.Len() {
		p, c, sc, q := pos.At(i), dc.At(i), scale.At(i), rot.At(i)
		copy(s.Positions[3*i:], []float64{p.X(), p.Y(), p.Z()})
		copy(s.FeaturesDC[3*i:], []float64{c.X(), c.Y(), c.Z()})
		copy(s.Scales[3*i:], []float64{sc.X(), sc.Y(), sc.Z()})
		copy(s.Rotations[4*i:], []float64{q.X(), q.Y(), q.Z(), q.W()})
		s.Opacities[i] = opacity.At(i)
		if math.IsNaN(s.Opacities[i]) {
			return nil, fmt.Errorf("vertex %d has NaN opacity", i)
		}
	}
	for k := range restCount {
		coeff := m.Float1Attribute(restAttribute(k))
		for i := range s.Len() {
			s.FeaturesRest[restCount*i+k] = coeff.At(i)
		}
	}
	return s, nil
}
