package optim

import "math"

// Scheduler yields the learning rate for an iteration.
type Scheduler interface {
	// LR returns the learning rate at step. It must not modify the scheduler.
	LR(step int) float64

	// Name returns the scheduler name for logging.
	Name() string
}

// ConstantLR always returns the same rate.
type ConstantLR float64

func (c ConstantLR) LR(int) float64 { return float64(c) }

func (c ConstantLR) Name() string { return "ConstantLR" }

// ExponentialDecayLR interpolates log-linearly from Init to Final over
// MaxSteps and stays at Final afterwards.
//
// When DelaySteps > 0 the rate is additionally scaled by a warmup factor
// that rises from DelayMult to 1 along a quarter sine over the first
// DelaySteps steps.
type ExponentialDecayLR struct {
	Init       float64
	Final      float64
	DelayMult  float64
	DelaySteps int
	MaxSteps   int
}

// LR implements Scheduler.
func (s ExponentialDecayLR) LR(step int) float64 {
	if step < 0 || (s.Init == 0 && s.Final == 0) {
		return 0
	}

	delay := 1.0
	if s.DelaySteps > 0 {
		p := clamp01(float64(step) / float64(s.DelaySteps))
		delay = s.DelayMult + (1-s.DelayMult)*math.Sin(0.5*math.Pi*p)
	}

	t := 1.0
	if s.MaxSteps > 0 {
		t = clamp01(float64(step) / float64(s.MaxSteps))
	}

	var lr float64
	switch {
	case t == 0:
		lr = s.Init
	case t == 1:
		lr = s.Final
	case s.Init <= 0 || s.Final <= 0:
		lr = s.Init*(1-t) + s.Final*t
	default:
		lr = math.Exp(math.Log(s.Init)*(1-t) + math.Log(s.Final)*t)
	}
	return delay * lr
}

// Name implements Scheduler.
func (s ExponentialDecayLR) Name() string { return "ExponentialDecayLR" }

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
