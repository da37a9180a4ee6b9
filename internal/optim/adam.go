// Package optim holds the first-order optimizer and learning-rate schedules
// used by the scene optimizers.
package optim

import (
	"fmt"
	"math"
)

// AdamConfig holds Adam hyperparameters shared by every parameter group.
type AdamConfig struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// DefaultAdamConfig returns the configuration used for Gaussian scenes.
// The tiny epsilon keeps updates meaningful for parameters whose gradients
// are very small, such as positions far from the camera.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-15,
	}
}

type moments struct {
	stride int
	step   int
	m      []float64
	v      []float64
}

// Adam keeps first and second moment estimates per named parameter group.
//
// Groups are laid out point-major with a fixed stride (3 for positions, 4 for
// rotations and so on), so the optimizer can follow the scene as points are
// appended or removed. Parameters themselves are not retained: every Step
// receives the current slices.
type Adam struct {
	cfg    AdamConfig
	groups map[string]*moments
	order  []string
}

// NewAdam creates an optimizer with no groups.
func NewAdam(cfg AdamConfig) *Adam {
	return &Adam{cfg: cfg, groups: make(map[string]*moments)}
}

// Register adds a group sized for points points of stride values each.
func (a *Adam) Register(name string, stride, points int) {
	a.groups[name] = &moments{
		stride: stride,
		m:      make([]float64, stride*points),
		v:      make([]float64, stride*points),
	}
	a.order = append(a.order, name)
}

// Step applies one Adam update to params in place.
func (a *Adam) Step(name string, params, grads []float64, lr float64) error {
	g, ok := a.groups[name]
	if !ok {
		return fmt.Errorf("adam: unknown group %q", name)
	}
	if len(params) != len(g.m) || len(grads) != len(g.m) {
		return fmt.Errorf("adam: group %q has %d values, got params=%d grads=%d",
			name, len(g.m), len(params), len(grads))
	}

	g.step++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	c1 := 1 - math.Pow(b1, float64(g.step))
	c2 := 1 - math.Pow(b2, float64(g.step))
	for i, gr := range grads {
		g.m[i] = b1*g.m[i] + (1-b1)*gr
		g.v[i] = b2*g.v[i] + (1-b2)*gr*gr
		mHat := g.m[i] / c1
		vHat := g.v[i] / c2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon)
	}
	return nil
}

// Grow appends zeroed moments for n new points to every group.
func (a *Adam) Grow(n int) {
	for _, g := range a.groups {
		g.m = append(g.m, make([]float64, n*g.stride)...)
		g.v = append(g.v, make([]float64, n*g.stride)...)
	}
}

// Keep compacts every group to the points whose keep flag is set.
func (a *Adam) Keep(keep []bool) {
	for _, g := range a.groups {
		g.m = compact(g.m, keep, g.stride)
		g.v = compact(g.v, keep, g.stride)
	}
}

// Reset zeroes the moments of one group, e.g. after its values were
// overwritten wholesale.
func (a *Adam) Reset(name string) {
	if g, ok := a.groups[name]; ok {
		clear(g.m)
		clear(g.v)
	}
}

// Points reports the number of points tracked by the named group.
func (a *Adam) Points(name string) int {
	g, ok := a.groups[name]
	if !ok || g.stride == 0 {
		return 0
	}
	return len(g.m) / g.stride
}

// Groups returns the registered group names in registration order.
func (a *Adam) Groups() []string {
	return append([]string(nil), a.order...)
}

func compact(values []float64, keep []bool, stride int) []float64 {
	w := 0
	for i, k := range keep {
		if !k {
			continue
		}
		copy(values[w*stride:(w+1)*stride], values[i*stride:(i+1)*stride])
		w++
	}
	return values[:w*stride]
}
