package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdam_FirstStepMovesByLR(t *testing.T) {
	a := NewAdam(DefaultAdamConfig())
	a.Register("xyz", 3, 1)

	params := []float64{1, 1, 1}
	grads := []float64{0.5, -2, 0}
	require.NoError(t, a.Step("xyz", params, grads, 0.1))

	// Bias-corrected first step is lr * sign(g).
	assert.InDelta(t, 0.9, params[0], 1e-9)
	assert.InDelta(t, 1.1, params[1], 1e-9)
	assert.InDelta(t, 1.0, params[2], 1e-9)
}

func TestAdam_MinimisesQuadratic(t *testing.T) {
	a := NewAdam(AdamConfig{Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8})
	a.Register("x", 1, 2)

	x := []float64{5, -3}
	for range 2000 {
		g := []float64{2 * x[0], 2 * x[1]}
		require.NoError(t, a.Step("x", x, g, 0.05))
	}
	assert.InDelta(t, 0, x[0], 1e-2)
	assert.InDelta(t, 0, x[1], 1e-2)
}

func TestAdam_StepErrors(t *testing.T) {
	a := NewAdam(DefaultAdamConfig())
	assert.Error(t, a.Step("missing", nil, nil, 1))

	a.Register("x", 1, 2)
	assert.Error(t, a.Step("x", []float64{1}, []float64{1}, 1))
}

func TestAdam_GrowAndKeep(t *testing.T) {
	a := NewAdam(DefaultAdamConfig())
	a.Register("rot", 4, 2)
	a.Register("opacity", 1, 2)

	require.NoError(t, a.Step("opacity", []float64{0, 0}, []float64{1, 2}, 0.1))
	a.Grow(3)
	assert.Equal(t, 5, a.Points("rot"))
	assert.Equal(t, 5, a.Points("opacity"))

	a.Keep([]bool{false, true, true, false, false})
	assert.Equal(t, 2, a.Points("rot"))
	assert.Equal(t, 2, a.Points("opacity"))

	// The surviving original keeps its moment; the appended one starts at zero.
	g := a.groups["opacity"]
	assert.InDelta(t, 0.2, g.m[0], 1e-12)
	assert.Equal(t, 0.0, g.m[1])

	assert.Equal(t, []string{"rot", "opacity"}, a.Groups())
}

func TestAdam_Reset(t *testing.T) {
	a := NewAdam(DefaultAdamConfig())
	a.Register("opacity", 1, 1)
	require.NoError(t, a.Step("opacity", []float64{0}, []float64{1}, 0.1))
	a.Reset("opacity")
	assert.Equal(t, 0.0, a.groups["opacity"].m[0])
	assert.Equal(t, 0.0, a.groups["opacity"].v[0])
}

func TestExponentialDecayLR(t *testing.T) {
	s := ExponentialDecayLR{Init: 0.001, Final: 0.00002, DelayMult: 0.02, MaxSteps: 500}

	assert.InDelta(t, 0.001, s.LR(0), 1e-15)
	assert.InDelta(t, 0.00002, s.LR(500), 1e-15)
	assert.InDelta(t, 0.00002, s.LR(10000), 1e-15)
	assert.InDelta(t, math.Sqrt(0.001*0.00002), s.LR(250), 1e-12)

	prev := s.LR(0)
	for step := 1; step <= 500; step++ {
		lr := s.LR(step)
		assert.LessOrEqual(t, lr, prev)
		prev = lr
	}

	assert.Equal(t, 0.0, s.LR(-1))
	assert.Equal(t, "ExponentialDecayLR", s.Name())
}

func TestExponentialDecayLR_Warmup(t *testing.T) {
	s := ExponentialDecayLR{Init: 1, Final: 1, DelayMult: 0.1, DelaySteps: 100, MaxSteps: 1000}
	assert.InDelta(t, 0.1, s.LR(0), 1e-12)
	assert.InDelta(t, 1, s.LR(100), 1e-12)
	assert.Less(t, s.LR(50), 1.0)
	assert.Greater(t, s.LR(50), 0.1)
}

func TestExponentialDecayLR_ZeroEndpoint(t *testing.T) {
	s := ExponentialDecayLR{Init: 0.01, Final: 0, MaxSteps: 10}
	assert.InDelta(t, 0.005, s.LR(5), 1e-12)
	assert.False(t, math.IsNaN(s.LR(3)))

	assert.Equal(t, 0.0, ExponentialDecayLR{MaxSteps: 10}.LR(3))
}

func TestConstantLR(t *testing.T) {
	var s Scheduler = ConstantLR(0.05)
	assert.Equal(t, 0.05, s.LR(0))
	assert.Equal(t, 0.05, s.LR(99999))
	assert.Equal(t, "ConstantLR", s.Name())
}
