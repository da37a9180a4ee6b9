package gaussian

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// InitialOpacity is the activated opacity given to freshly created points.
const InitialOpacity = 0.1

// minNeighborDist2 keeps log-scales finite for coincident points.
const minNeighborDist2 = 1e-7

// RandomBall samples n points uniformly inside a ball of the given radius
// around the origin, each with a uniformly random colour.
func RandomBall(rng *rand.Rand, n int, radius float64) ([]r3.Vec, [][3]float64) {
	points := make([]r3.Vec, n)
	colors := make([][3]float64, n)
	for i := range n {
		dir := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		if l := r3.Norm(dir); l > 0 {
			dir = r3.Scale(1/l, dir)
		}
		points[i] = r3.Scale(radius*math.Cbrt(rng.Float64()), dir)
		colors[i] = [3]float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	return points, colors
}

// FromPoints builds a set with one isotropic Gaussian per point. Each scale
// is the root mean squared distance to the point's k nearest neighbours.
func FromPoints(points []r3.Vec, colors [][3]float64, shDegree, k int) (*Set, error) {
	if len(points) != len(colors) {
		return nil, fmt.Errorf("got %d points but %d colours", len(points), len(colors))
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("cannot initialize an empty gaussian set")
	}

	dist2 := MeanNeighborDist2(points, k)
	s := NewSet(len(points), shDegree)
	opacity := Logit(InitialOpacity)
	for i, p := range points {
		s.SetPosition(i, p)
		for ch := range 3 {
			s.FeaturesDC[3*i+ch] = RGBToSH(colors[i][ch])
		}
		logScale := math.Log(math.Sqrt(math.Max(dist2[i], minNeighborDist2)))
		s.Scales[3*i], s.Scales[3*i+1], s.Scales[3*i+2] = logScale, logScale, logScale
		s.Opacities[i] = opacity
	}
	return s, nil
}

// MeanNeighborDist2 returns, for every point, the mean squared distance to
// its k nearest other points. Points without neighbours get zero.
func MeanNeighborDist2(points []r3.Vec, k int) []float64 {
	out := make([]float64, len(points))
	if len(points) < 2 || k < 1 {
		return out
	}

	// kdtree.New reorders its input, so the tree gets its own copy.
	pts := make(kdtree.Points, len(points))
	for i, p := range points {
		pts[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	tree := kdtree.New(pts, false)

	for i, p := range points {
		// One extra neighbour: the query point finds itself first.
		keeper := kdtree.NewNKeeper(k + 1)
		tree.NearestSet(keeper, kdtree.Point{p.X, p.Y, p.Z})

		var sum float64
		var n int
		skippedSelf := false
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil {
				continue
			}
			if !skippedSelf && cd.Dist == 0 {
				skippedSelf = true
				continue
			}
			if n == k {
				break
			}
			sum += cd.Dist
			n++
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}
