package gaussian

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// Defaults for adaptive density control.
const (
	// DefaultMinOpacity prunes points that have faded out.
	DefaultMinOpacity = 0.005
	// DefaultSplitChildren is the number of points a split point becomes.
	DefaultSplitChildren = 2
	// ResetOpacityCeiling is the opacity points are lowered to on reset.
	ResetOpacityCeiling = 0.01
)

// Follower is state laid out per point that must track every change in the
// number or order of points, such as optimizer moments.
type Follower interface {
	Grow(n int)
	Keep(keep []bool)
}

// Stats accumulates the norm of view-space positional gradients of every
// visible point between densification passes.
type Stats struct {
	accum []float64
	count []float64
}

// NewStats allocates statistics for n points.
func NewStats(n int) *Stats {
	return &Stats{accum: make([]float64, n), count: make([]float64, n)}
}

// Add records one observation of point i.
func (st *Stats) Add(i int, gradNorm float64) {
	st.accum[i] += gradNorm
	st.count[i]++
}

// Mean returns the average gradient norm of point i, or 0 if it was never
// visible.
func (st *Stats) Mean(i int) float64 {
	if st.count[i] == 0 {
		return 0
	}
	return st.accum[i] / st.count[i]
}

// Len returns the number of tracked points.
func (st *Stats) Len() int { return len(st.accum) }

// Grow implements Follower.
func (st *Stats) Grow(n int) {
	st.accum = append(st.accum, make([]float64, n)...)
	st.count = append(st.count, make([]float64, n)...)
}

// Keep implements Follower.
func (st *Stats) Keep(keep []bool) {
	w := 0
	for i, k := range keep {
		if k {
			st.accum[w], st.count[w] = st.accum[i], st.count[i]
			w++
		}
	}
	st.accum, st.count = st.accum[:w], st.count[:w]
}

// Reset clears every observation.
func (st *Stats) Reset() {
	clear(st.accum)
	clear(st.count)
}

// DensifyConfig controls one densification pass.
type DensifyConfig struct {
	// GradThreshold selects points whose mean view-space gradient is at
	// least this large.
	GradThreshold float64
	// PercentDense times Extent separates small points, which are cloned,
	// from large points, which are split.
	PercentDense float64
	Extent       float64

	MinOpacity    float64
	SplitChildren int
}

// DensifyResult counts what a pass did.
type DensifyResult struct {
	Cloned int
	Split  int
	Pruned int
}

// Densify clones small high-gradient points, splits large ones, prunes
// transparent ones and then clears st. Every follower, including st, is kept
// in step with the set.
func Densify(s *Set, st *Stats, cfg DensifyConfig, rng *rand.Rand, followers ...Follower) DensifyResult {
	if cfg.MinOpacity == 0 {
		cfg.MinOpacity = DefaultMinOpacity
	}
	if cfg.SplitChildren <= 0 {
		cfg.SplitChildren = DefaultSplitChildren
	}
	all := append([]Follower{st}, followers...)
	limit := cfg.PercentDense * cfg.Extent

	n0 := s.Len()
	grads := make([]float64, n0)
	for i := range grads {
		grads[i] = st.Mean(i)
	}

	var clone, split []int
	for i := range n0 {
		if grads[i] < cfg.GradThreshold {
			continue
		}
		if s.MaxScale(i) <= limit {
			clone = append(clone, i)
		} else {
			split = append(split, i)
		}
	}

	var res DensifyResult
	if len(clone) > 0 {
		s.Append(clone)
		grow(all, len(clone))
		res.Cloned = len(clone)
	}

	if len(split) > 0 {
		splitPoints(s, split, cfg.SplitChildren, rng)
		grow(all, len(split)*cfg.SplitChildren)

		keep := make([]bool, s.Len())
		for i := range keep {
			keep[i] = true
		}
		for _, i := range split {
			keep[i] = false
		}
		s.Keep(keep)
		keepAll(all, keep)
		res.Split = len(split)
	}

	res.Pruned = Prune(s, cfg.MinOpacity, all...)
	st.Reset()
	return res
}

// Prune removes points whose opacity is below minOpacity.
func Prune(s *Set, minOpacity float64, followers ...Follower) int {
	keep := make([]bool, s.Len())
	pruned := 0
	for i := range keep {
		keep[i] = s.Opacity(i) >= minOpacity
		if !keep[i] {
			pruned++
		}
	}
	if pruned > 0 {
		s.Keep(keep)
		keepAll(followers, keep)
	}
	return pruned
}

// ResetOpacity lowers every opacity to at most ceiling.
func ResetOpacity(s *Set, ceiling float64) {
	limit := Logit(ceiling)
	for i, o := range s.Opacities {
		s.Opacities[i] = math.Min(o, limit)
	}
}

// splitPoints appends children children per listed point. Each child is
// displaced by a sample from its parent's Gaussian and shrunk so that the
// children together cover roughly the parent's volume.
func splitPoints(s *Set, indices []int, children int, rng *rand.Rand) {
	shrink := math.Log(0.8 * float64(children))
	for c := 0; c < children; c++ {
		base := s.Len()
		s.Append(indices)
		for k, parent := range indices {
			child := base + k
			scale := s.Scale(parent)
			sample := r3.Vec{
				X: rng.NormFloat64() * scale[0],
				Y: rng.NormFloat64() * scale[1],
				Z: rng.NormFloat64() * scale[2],
			}
			r := RotationMatrix(s.Rotation(parent))
			offset := r3.Vec{
				X: r[0][0]*sample.X + r[0][1]*sample.Y + r[0][2]*sample.Z,
				Y: r[1][0]*sample.X + r[1][1]*sample.Y + r[1][2]*sample.Z,
				Z: r[2][0]*sample.X + r[2][1]*sample.Y + r[2][2]*sample.Z,
			}
			s.SetPosition(child, r3.Add(s.Position(parent), offset))
			for ax := range 3 {
				s.Scales[3*child+ax] -= shrink
			}
		}
	}
}

func grow(fs []Follower, n int) {
	for _, f := range fs {
		f.Grow(n)
	}
}

func keepAll(fs []Follower, keep []bool) {
	for _, f := range fs {
		f.Keep(keep)
	}
}
