package gaussian

import (
	"bytes"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// recorder is a Follower that mirrors the point count.
type recorder struct{ n int }

func (r *recorder) Grow(n int) { r.n += n }

func (r *recorder) Keep(keep []bool) {
	r.n = 0
	for _, k := range keep {
		if k {
			r.n++
		}
	}
}

func gridSet(t *testing.T) *Set {
	t.Helper()
	var pts []r3.Vec
	var cols [][3]float64
	for x := range 3 {
		for y := range 3 {
			pts = append(pts, r3.Vec{X: float64(x), Y: float64(y)})
			cols = append(cols, [3]float64{0.5, 0.5, 0.5})
		}
	}
	s, err := FromPoints(pts, cols, 1, 2)
	require.NoError(t, err)
	return s
}

func TestMeanNeighborDist2_Grid(t *testing.T) {
	pts := []r3.Vec{{X: 0}, {X: 1}, {X: 3}}
	d := MeanNeighborDist2(pts, 1)
	assert.InDelta(t, 1, d[0], 1e-12)
	assert.InDelta(t, 1, d[1], 1e-12)
	assert.InDelta(t, 4, d[2], 1e-12)

	d = MeanNeighborDist2(pts, 5)
	assert.InDelta(t, (1+9)/2.0, d[0], 1e-12, "k larger than the set uses every other point")

	assert.Equal(t, []float64{0}, MeanNeighborDist2(pts[:1], 3))
}

func TestFromPoints(t *testing.T) {
	s := gridSet(t)
	require.Equal(t, 9, s.Len())
	assert.Len(t, s.FeaturesRest, 9*RestStride(1))
	assert.Equal(t, 9, RestStride(1))

	for i := range s.Len() {
		assert.InDelta(t, InitialOpacity, s.Opacity(i), 1e-12)
		assert.Equal(t, [4]float64{1, 0, 0, 0}, s.Rotation(i))
		c := s.Color(i)
		assert.InDelta(t, 0.5, c[0], 1e-12)
	}
	// Grid spacing 1: nearest two neighbours of any point are at distance 1.
	assert.InDelta(t, 1, s.MaxScale(4), 1e-9)

	_, err := FromPoints(nil, nil, 0, 3)
	assert.Error(t, err)
	_, err = FromPoints([]r3.Vec{{}}, nil, 0, 3)
	assert.Error(t, err)
}

func TestRandomBall(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pts, cols := RandomBall(rng, 500, 0.5)
	require.Len(t, pts, 500)
	require.Len(t, cols, 500)
	for i, p := range pts {
		assert.LessOrEqual(t, r3.Norm(p), 0.5+1e-12)
		for _, c := range cols[i] {
			assert.True(t, c >= 0 && c < 1)
		}
	}
}

func TestAppendAndKeep(t *testing.T) {
	s := gridSet(t)
	s.Opacities[2] = 7
	s.Append([]int{2, 2})
	require.Equal(t, 11, s.Len())
	assert.Equal(t, 7.0, s.Opacities[10])
	assert.Equal(t, s.Position(2), s.Position(9))

	keep := make([]bool, 11)
	keep[2], keep[10] = true, true
	s.Keep(keep)
	require.Equal(t, 2, s.Len())
	assert.Len(t, s.Positions, 6)
	assert.Len(t, s.Rotations, 8)
	assert.Len(t, s.FeaturesRest, 2*RestStride(1))
}

func TestDensify_CloneSplitPrune(t *testing.T) {
	s := gridSet(t)
	// Point 0 is small, point 1 large, point 2 transparent.
	s.Scales[0], s.Scales[1], s.Scales[2] = math.Log(0.001), math.Log(0.001), math.Log(0.001)
	s.Scales[3], s.Scales[4], s.Scales[5] = math.Log(5), math.Log(5), math.Log(5)
	s.Opacities[2] = Logit(0.001)

	st := NewStats(s.Len())
	st.Add(0, 1)
	st.Add(1, 1)
	st.Add(1, 3)
	st.Add(3, 0.001)

	rec := &recorder{n: s.Len()}
	res := Densify(s, st, DensifyConfig{GradThreshold: 0.5, PercentDense: 0.01, Extent: 2}, rand.New(rand.NewSource(3)), rec)

	assert.Equal(t, 1, res.Cloned)
	assert.Equal(t, 1, res.Split)
	assert.Equal(t, 1, res.Pruned)
	// 9 + 1 clone + 2 children - 1 split parent - 1 pruned
	assert.Equal(t, 10, s.Len())
	assert.Equal(t, s.Len(), rec.n)
	assert.Equal(t, s.Len(), st.Len())
	for i := range st.Len() {
		assert.Equal(t, 0.0, st.Mean(i))
	}

	// Split children are shrunk by 0.8 * 2.
	last := s.Len() - 1
	assert.InDelta(t, 5/1.6, s.Scale(last)[0], 1e-9)
}

func TestDensify_NothingSelected(t *testing.T) {
	s := gridSet(t)
	st := NewStats(s.Len())
	res := Densify(s, st, DensifyConfig{GradThreshold: 1, PercentDense: 0.01, Extent: 1}, rand.New(rand.NewSource(1)))
	assert.Equal(t, DensifyResult{}, res)
	assert.Equal(t, 9, s.Len())
}

func TestResetOpacity(t *testing.T) {
	s := gridSet(t)
	s.Opacities[0] = Logit(0.9)
	s.Opacities[1] = Logit(0.001)
	ResetOpacity(s, ResetOpacityCeiling)
	assert.InDelta(t, 0.01, s.Opacity(0), 1e-12)
	assert.InDelta(t, 0.001, s.Opacity(1), 1e-12)
}

func TestArtifact_IsImmutableSnapshot(t *testing.T) {
	s := gridSet(t)
	a := Freeze(s, 12)
	s.Opacities[0] = 100
	s.Append([]int{0})

	assert.Equal(t, 9, a.Len())
	assert.Equal(t, 12, a.Iterations())
	assert.Equal(t, 1, a.SHDegree())

	cp := a.Set()
	cp.Opacities[0] = -100
	assert.InDelta(t, InitialOpacity, a.Set().Opacity(0), 1e-12)
}

func TestPLY_RoundTrip(t *testing.T) {
	for _, degree := range []int{0, 3} {
		s := NewSet(4, degree)
		rng := rand.New(rand.NewSource(int64(degree)))
		for _, a := range s.Attributes() {
			for i := range *a.Values {
				(*a.Values)[i] = float64(float32(rng.NormFloat64()))
			}
		}

		var buf bytes.Buffer
		require.NoError(t, WritePLY(&buf, s))
		assert.Contains(t, buf.String(), "f_dc_2")
		assert.Equal(t, degree > 0, strings.Contains(buf.String(), "f_rest_44"))

		got, err := ReadPLY(&buf)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestSavePLY_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "scene.ply")
	a := Freeze(gridSet(t), 0)
	require.NoError(t, a.SavePLY(path))

	got, err := LoadPLY(path)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Len())
	assert.Equal(t, 1, got.SHDegree)
}

func TestReadPLY_Rejects(t *testing.T) {
	_, err := ReadPLY(bytes.NewBufferString("ply\nformat ascii 1.0\nelement vertex 0\nproperty float x\nproperty float y\nproperty float z\nend_header\n"))
	assert.ErrorContains(t, err, "missing vertex property")

	_, err = ReadPLY(bytes.NewBufferString("ply\nformat ascii 1.0\nelement vertex 0\nproperty float f_rest_0\nend_header\n"))
	assert.ErrorContains(t, err, "SH degree")
}
