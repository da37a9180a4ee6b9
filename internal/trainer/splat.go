package trainer

import (
	"context"
	"math"
	"time"

	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/loss"
	"github.com/roach88/orbitsplat/internal/optim"
	"github.com/roach88/orbitsplat/internal/params"
	"github.com/roach88/orbitsplat/internal/raster"
)

// InitRadius is the radius of the ball random initial points are drawn from.
const InitRadius = 0.5

// restLRDivisor scales the feature learning rate down for the
// higher-order SH coefficients.
const restLRDivisor = 20

// SplatRun optimizes a Gaussian scene against reference views.
type SplatRun struct {
	cfg    config
	p      params.Training
	views  []refView
	batch  int
	extent float64

	scene   *gaussian.Set
	adam    *optim.Adam
	stats   *gaussian.Stats
	anchors *anchors
	posLR   optim.Scheduler
	state   runState
}

// NewSplatRun validates its inputs and initializes the scene. Mismatched
// reference counts and out-of-range parameters are user-input errors.
func NewSplatRun(refs References, p params.Training, opts ...Option) (*SplatRun, error) {
	p, err := params.NewTraining(p)
	if err != nil {
		return nil, err
	}
	if err := refs.Check(); err != nil {
		return nil, err
	}
	cfg := newConfig(opts)

	r := &SplatRun{
		cfg:   cfg,
		p:     p,
		views: prepareViews(refs, p.FovY, cfg.maxPixels),
		batch: capBatch(cfg.logger, p.BatchSize, refs.Len()),
		posLR: optim.ExponentialDecayLR{
			Init:      p.PositionLearningRateInit,
			Final:     p.PositionLearningRateFinal,
			DelayMult: p.PositionLearningRateDelay,
			MaxSteps:  p.PositionLearningRateSteps,
		},
	}
	r.extent = cameraExtent(r.views)

	if err := r.initScene(); err != nil {
		return nil, err
	}
	if r.extent == 0 {
		r.extent = r.scene.Extent()
	}
	return r, nil
}

func (r *SplatRun) initScene() error {
	n := r.p.InitialGaussiansNum
	points, colors := gaussian.RandomBall(r.cfg.rng, n, InitRadius)
	if m := r.cfg.seedMesh; m != nil && m.TriangleCount() > 0 {
		points, colors = m.SampleSurface(r.cfg.rng, n)
	}
	s, err := gaussian.FromPoints(points, colors, r.p.GaussianSHDegree, r.p.KNearestNeighbors)
	if err != nil {
		return ir.NewUserInputError(ir.ErrCodeInvalidInput, err.Error(), nil)
	}
	r.scene = s
	r.adam = optim.NewAdam(optim.DefaultAdamConfig())
	for _, a := range s.Attributes() {
		r.adam.Register(a.Name, a.Stride, s.Len())
	}
	r.stats = gaussian.NewStats(s.Len())
	r.anchors = newAnchors(s.Positions)
	return nil
}

// BatchSize returns the effective batch size after capping.
func (r *SplatRun) BatchSize() int { return r.batch }

// Scene returns a copy of the current scene.
func (r *SplatRun) Scene() *gaussian.Set { return r.scene.Clone() }

// Train runs every iteration and freezes the result. With zero iterations
// the initial scene is returned. Render and backward failures abort the run
// with a resource error and no artifact.
func (r *SplatRun) Train(ctx context.Context) (*gaussian.Artifact, error) {
	if err := r.state.begin(); err != nil {
		return nil, err
	}
	log := r.cfg.logger
	log.Info("splatting started",
		"iterations", r.p.TrainingIterations,
		"batch_size", r.batch,
		"gaussians", r.scene.Len(),
		"references", len(r.views),
	)
	start := time.Now()

	for it := range r.p.TrainingIterations {
		stepLoss, err := r.step(ctx, it)
		if err != nil {
			r.state = stateFailed
			log.Error("splatting failed", "iteration", it, "error", err)
			return nil, err
		}
		if it%100 == 0 {
			log.Debug("splatting step", "iteration", it, "loss", stepLoss, "gaussians", r.scene.Len())
		}
		if r.cfg.observer != nil {
			r.cfg.observer(Step{
				Iteration:  it,
				Loss:       stepLoss,
				Gaussians:  r.scene.Len(),
				PositionLR: r.posLR.LR(it),
				Elapsed:    time.Since(start),
			})
		}
	}

	r.state = stateDone
	log.Info("splatting finished", "gaussians", r.scene.Len(), "elapsed", time.Since(start))
	return gaussian.Freeze(r.scene, r.p.TrainingIterations), nil
}

// step renders one batch, backpropagates, updates the scene and runs
// density control, holding the device for the whole iteration. It returns
// the mean batch loss.
func (r *SplatRun) step(ctx context.Context, it int) (float64, error) {
	var total float64
	err := onDevice(ctx, r.cfg.device, func() error {
		var err error
		total, err = r.iterate(ctx, it)
		return err
	})
	return total, err
}

func (r *SplatRun) iterate(ctx context.Context, it int) (float64, error) {
	s := r.scene
	grad := raster.NewSplatGrad(s)
	inDensityWindow := it >= r.p.DensityStartIterations && it < r.p.DensityEndIterations
	weight := 1 / float64(r.batch)

	var total float64
	for _, idx := range sampleBatch(r.cfg.rng, len(r.views), r.batch) {
		v := r.views[idx]
		bg := pickBackground(r.cfg.rng, r.p.InvertBackgroundProbability)
		l, err := r.viewLoss(ctx, v, bg, grad, weight)
		if err != nil {
			return 0, err
		}
		total += l

		if inDensityWindow {
			for i := range s.Len() {
				gx, gy := grad.Viewspace[2*i], grad.Viewspace[2*i+1]
				if gx != 0 || gy != 0 {
					r.stats.Add(i, math.Hypot(gx, gy))
				}
			}
		}
		clear(grad.Viewspace)
	}

	total += loss.Offset(s.Positions, r.anchors.pos, grad.Positions, r.p.OffsetLossWeight)
	total += loss.OffsetOpacity(s.Positions, r.anchors.pos, s.Opacities, grad.Positions, grad.Opacities, r.p.OffsetOpacityLossWeight)

	if err := r.update(it, grad); err != nil {
		return 0, err
	}
	r.densify(it, inDensityWindow)
	return total, nil
}

// viewLoss renders one view and adds the weighted gradient of its loss
// into grad.
func (r *SplatRun) viewLoss(ctx context.Context, v refView, bg [3]float32, grad *raster.SplatGrad, weight float64) (float64, error) {
	view := raster.View{Camera: v.camera, Background: bg}
	out, err := r.cfg.splat.Render(ctx, r.scene, view)
	if err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "render gaussian view", err)
	}
	target := composite(v.image, v.mask, bg)

	dColor := make([]float32, len(out.Color.Pix))
	dAlpha := make([]float32, len(out.Alpha.Pix))
	var l float64

	mse, err := loss.MSE(out.Color.Pix, target.Pix, dColor, weight*r.p.LossValueScale)
	if err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "color loss", err)
	}
	l += mse
	if r.p.MSSSIMLossWeight > 0 {
		ms, err := loss.MSSSIMLoss(out.Color, target, dColor, weight*r.p.MSSSIMLossWeight)
		if err != nil {
			return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "ms-ssim loss", err)
		}
		l += ms
	}
	alpha, err := loss.MSE(out.Alpha.Pix, v.mask.Pix, dAlpha, weight*r.p.AlphaLossWeight)
	if err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "alpha loss", err)
	}
	l += alpha

	if err := r.cfg.splat.Backward(ctx, r.scene, view, out, dColor, dAlpha, grad); err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeBackwardFailed, "backpropagate gaussian view", err)
	}
	return l, nil
}

// update applies one Adam step per parameter group.
func (r *SplatRun) update(it int, grad *raster.SplatGrad) error {
	lrs := map[string]float64{
		gaussian.GroupXYZ:      r.posLR.LR(it),
		gaussian.GroupDC:       r.p.FeatureLearningRate,
		gaussian.GroupRest:     r.p.FeatureLearningRate / restLRDivisor,
		gaussian.GroupOpacity:  r.p.OpacityLearningRate,
		gaussian.GroupScaling:  r.p.ScalingLearningRate,
		gaussian.GroupRotation: r.p.RotationLearningRate,
	}
	for _, a := range r.scene.Attributes() {
		if err := r.adam.Step(a.Name, *a.Values, grad.Group(a.Name), lrs[a.Name]); err != nil {
			return ir.NewResourceError(ir.ErrCodeBackwardFailed, "optimizer step", err)
		}
	}
	return nil
}

// densify runs adaptive density control after the update of iteration it.
func (r *SplatRun) densify(it int, inWindow bool) {
	if !inWindow {
		return
	}
	s := r.scene
	if it > r.p.DensityStartIterations && it%r.p.DensificationInterval == 0 {
		res := gaussian.Densify(s, r.stats, gaussian.DensifyConfig{
			GradThreshold: r.p.DensifyGradThreshold,
			PercentDense:  r.p.PercentDense,
			Extent:        r.extent,
		}, r.cfg.rng, r.adam, r.anchors)
		r.anchors.fill(s.Positions)
		r.cfg.logger.Debug("densified",
			"iteration", it,
			"cloned", res.Cloned,
			"split", res.Split,
			"pruned", res.Pruned,
			"gaussians", s.Len(),
		)
	}
	if it > 0 && it%r.p.OpacityResetInterval == 0 {
		gaussian.ResetOpacity(s, gaussian.ResetOpacityCeiling)
		r.adam.Reset(gaussian.GroupOpacity)
		r.cfg.logger.Debug("opacity reset", "iteration", it)
	}
}

// anchors remembers where every point started, for the offset losses.
// Points created by densification are anchored where they first appear.
type anchors struct {
	pos []float64
}

func newAnchors(positions []float64) *anchors {
	return &anchors{pos: append([]float64(nil), positions...)}
}

// Grow implements gaussian.Follower. New anchors stay unset until fill.
func (a *anchors) Grow(n int) {
	for range 3 * n {
		a.pos = append(a.pos, math.NaN())
	}
}

// Keep implements gaussian.Follower.
func (a *anchors) Keep(keep []bool) {
	w := 0
	for i, k := range keep {
		if k {
			copy(a.pos[3*w:3*w+3], a.pos[3*i:3*i+3])
			w++
		}
	}
	a.pos = a.pos[:3*w]
}

// fill anchors every unset point at its current position.
func (a *anchors) fill(positions []float64) {
	for i, v := range a.pos {
		if math.IsNaN(v) {
			a.pos[i] = positions[i]
		}
	}
}
