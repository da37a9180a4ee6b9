// Package gaussian holds the Gaussian scene representation optimized by
// splatting runs: its parameters, initialization, adaptive density control
// and point-cloud export.
package gaussian

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SHC0 is the zeroth-order real spherical harmonic.
const SHC0 = 0.28209479177387814

// Parameter group names. Optimizers key their state by these.
const (
	GroupXYZ      = "xyz"
	GroupDC       = "f_dc"
	GroupRest     = "f_rest"
	GroupOpacity  = "opacity"
	GroupScaling  = "scaling"
	GroupRotation = "rotation"
)

// Set is a mutable collection of anisotropic Gaussians.
//
// Attributes are stored point-major in flat slices: Positions holds x,y,z
// for point 0, then point 1, and so on. Opacities are logits, scales are
// logarithms and rotations are w,x,y,z quaternions, so every value can be
// optimized without constraints. FeaturesRest holds the higher-order
// spherical-harmonic coefficients channel-major (all red coefficients, then
// green, then blue).
type Set struct {
	SHDegree     int
	Positions    []float64
	FeaturesDC   []float64
	FeaturesRest []float64
	Opacities    []float64
	Scales       []float64
	Rotations    []float64
}

// Attribute is one parameter group of a Set.
type Attribute struct {
	Name   string
	Stride int
	Values *[]float64
}

// NewSet allocates a set of n points with identity rotations.
func NewSet(n, shDegree int) *Set {
	s := &Set{
		SHDegree:     shDegree,
		Positions:    make([]float64, 3*n),
		FeaturesDC:   make([]float64, 3*n),
		FeaturesRest: make([]float64, RestStride(shDegree)*n),
		Opacities:    make([]float64, n),
		Scales:       make([]float64, 3*n),
		Rotations:    make([]float64, 4*n),
	}
	for i := range n {
		s.Rotations[4*i] = 1
	}
	return s
}

// RestStride is the number of higher-order SH values per point.
func RestStride(shDegree int) int {
	return 3 * ((shDegree+1)*(shDegree+1) - 1)
}

// Attributes lists every parameter group with its stride.
func (s *Set) Attributes() []Attribute {
	return []Attribute{
		{GroupXYZ, 3, &s.Positions},
		{GroupDC, 3, &s.FeaturesDC},
		{GroupRest, RestStride(s.SHDegree), &s.FeaturesRest},
		{GroupOpacity, 1, &s.Opacities},
		{GroupScaling, 3, &s.Scales},
		{GroupRotation, 4, &s.Rotations},
	}
}

// Len returns the number of Gaussians.
func (s *Set) Len() int {
	return len(s.Opacities)
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	return &Set{
		SHDegree:     s.SHDegree,
		Positions:    append([]float64(nil), s.Positions...),
		FeaturesDC:   append([]float64(nil), s.FeaturesDC...),
		FeaturesRest: append([]float64(nil), s.FeaturesRest...),
		Opacities:    append([]float64(nil), s.Opacities...),
		Scales:       append([]float64(nil), s.Scales...),
		Rotations:    append([]float64(nil), s.Rotations...),
	}
}

// Position returns the center of point i.
func (s *Set) Position(i int) r3.Vec {
	return r3.Vec{X: s.Positions[3*i], Y: s.Positions[3*i+1], Z: s.Positions[3*i+2]}
}

// SetPosition moves point i.
func (s *Set) SetPosition(i int, p r3.Vec) {
	s.Positions[3*i], s.Positions[3*i+1], s.Positions[3*i+2] = p.X, p.Y, p.Z
}

// Opacity returns the activated opacity of point i in (0, 1).
func (s *Set) Opacity(i int) float64 {
	return Sigmoid(s.Opacities[i])
}

// Scale returns the activated per-axis standard deviations of point i.
func (s *Set) Scale(i int) [3]float64 {
	return [3]float64{math.Exp(s.Scales[3*i]), math.Exp(s.Scales[3*i+1]), math.Exp(s.Scales[3*i+2])}
}

// MaxScale returns the largest activated scale of point i.
func (s *Set) MaxScale(i int) float64 {
	sc := s.Scale(i)
	return math.Max(sc[0], math.Max(sc[1], sc[2]))
}

// Rotation returns the normalized quaternion of point i as w,x,y,z.
func (s *Set) Rotation(i int) [4]float64 {
	q := [4]float64{s.Rotations[4*i], s.Rotations[4*i+1], s.Rotations[4*i+2], s.Rotations[4*i+3]}
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		return [4]float64{1, 0, 0, 0}
	}
	return [4]float64{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// Color returns the view-independent colour of point i, clamped at zero.
func (s *Set) Color(i int) [3]float64 {
	var c [3]float64
	for ch := range 3 {
		c[ch] = math.Max(0, SHToRGB(s.FeaturesDC[3*i+ch]))
	}
	return c
}

// Append copies the listed points to the end of the set.
func (s *Set) Append(indices []int) {
	for _, a := range s.Attributes() {
		vals := *a.Values
		for _, i := range indices {
			vals = append(vals, vals[i*a.Stride:(i+1)*a.Stride]...)
		}
		*a.Values = vals
	}
}

// Keep removes every point whose flag is false, preserving order.
func (s *Set) Keep(keep []bool) {
	for _, a := range s.Attributes() {
		vals := *a.Values
		w := 0
		for i, k := range keep {
			if !k {
				continue
			}
			copy(vals[w*a.Stride:(w+1)*a.Stride], vals[i*a.Stride:(i+1)*a.Stride])
			w++
		}
		*a.Values = vals[:w*a.Stride]
	}
}

// Extent returns the radius of the bounding sphere around the centroid.
func (s *Set) Extent() float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	var c r3.Vec
	for i := range n {
		c = r3.Add(c, s.Position(i))
	}
	c = r3.Scale(1/float64(n), c)
	var r float64
	for i := range n {
		r = math.Max(r, r3.Norm(r3.Sub(s.Position(i), c)))
	}
	return r
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Logit is the inverse of Sigmoid.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// RGBToSH converts a colour channel in [0, 1] to its DC coefficient.
func RGBToSH(c float64) float64 {
	return (c - 0.5) / SHC0
}

// SHToRGB converts a DC coefficient back to a colour channel.
func SHToRGB(sh float64) float64 {
	return sh*SHC0 + 0.5
}

// RotationMatrix returns the row-major rotation for a unit quaternion w,x,y,z.
func RotationMatrix(q [4]float64) [3][3]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}
