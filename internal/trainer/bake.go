package trainer

import (
	"context"
	"math"
	"time"

	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/loss"
	"github.com/roach88/orbitsplat/internal/mesh"
	"github.com/roach88/orbitsplat/internal/optim"
	"github.com/roach88/orbitsplat/internal/params"
	"github.com/roach88/orbitsplat/internal/raster"
)

// Parameter groups of a bake run.
const (
	groupTexture  = "texture"
	groupGeometry = "geometry"
)

// BakeRun optimizes a texture, and optionally vertex offsets, so the
// rendered mesh matches the reference views.
type BakeRun struct {
	cfg   config
	p     params.Bake
	views []refView
	batch int

	base    *mesh.Mesh // geometry before offsets, with UVs
	work    *mesh.Mesh // base plus offsets, rendered each step
	texture []float64  // RGB per texel, row-major, in [0,1]
	offsets []float64  // per-vertex xyz, nil unless geometry is trained
	width   int
	height  int
	adam    *optim.Adam
	state   runState
}

// NewBakeRun prepares a bake of refs onto m. The input mesh is not
// modified. Meshes without texture coordinates are given a fresh atlas.
func NewBakeRun(refs References, m *mesh.Mesh, p params.Bake, opts ...Option) (*BakeRun, error) {
	p, err := params.NewBake(p)
	if err != nil {
		return nil, err
	}
	if err := refs.Check(); err != nil {
		return nil, err
	}
	if m == nil || m.TriangleCount() == 0 {
		return nil, ir.NewUserInputError(ir.ErrCodeInvalidInput, "mesh has no triangles", nil)
	}
	cfg := newConfig(opts)

	base := m.Clone()
	if len(base.UVs) != 2*base.VertexCount() {
		cfg.logger.Info("mesh has no texture coordinates, building atlas", "triangles", base.TriangleCount())
		base.Retex()
	}

	r := &BakeRun{
		cfg:    cfg,
		p:      p,
		views:  prepareViews(refs, p.FovY, cfg.maxPixels),
		batch:  capBatch(cfg.logger, p.BatchSize, refs.Len()),
		base:   base,
		work:   base.Clone(),
		width:  p.TextureResolution,
		height: p.TextureResolution,
		adam:   optim.NewAdam(optim.DefaultAdamConfig()),
	}
	r.texture = initialTexture(base.Texture, r.width, r.height)
	r.adam.Register(groupTexture, 3, r.width*r.height)
	if p.TrainMeshGeometry {
		r.offsets = make([]float64, len(base.Positions))
		r.adam.Register(groupGeometry, 3, base.VertexCount())
	}
	return r, nil
}

// initialTexture resamples the mesh texture to width x height, or returns
// mid grey when there is none.
func initialTexture(tex *ir.Image, width, height int) []float64 {
	out := make([]float64, 3*width*height)
	if tex == nil || tex.Width == 0 || tex.Height == 0 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	if tex.Width != width || tex.Height != height {
		tex = imageio.Resize(tex, width, height)
	}
	for i, v := range tex.Pix {
		out[i] = float64(v)
	}
	return out
}

// BatchSize returns the effective batch size after capping.
func (r *BakeRun) BatchSize() int { return r.batch }

// Train runs every iteration and returns the textured mesh and its texture.
// When geometry is trained the returned mesh carries the optimized
// positions and recomputed normals.
func (r *BakeRun) Train(ctx context.Context) (*mesh.Mesh, *ir.Image, error) {
	if err := r.state.begin(); err != nil {
		return nil, nil, err
	}
	log := r.cfg.logger
	log.Info("baking started",
		"iterations", r.p.TrainingIterations,
		"batch_size", r.batch,
		"texture_resolution", r.width,
		"train_geometry", r.p.TrainMeshGeometry,
	)
	start := time.Now()

	for it := range r.p.TrainingIterations {
		stepLoss, err := r.step(ctx)
		if err != nil {
			r.state = stateFailed
			log.Error("baking failed", "iteration", it, "error", err)
			return nil, nil, err
		}
		if it%100 == 0 {
			log.Debug("baking step", "iteration", it, "loss", stepLoss)
		}
		if r.cfg.observer != nil {
			r.cfg.observer(Step{Iteration: it, Loss: stepLoss, Elapsed: time.Since(start)})
		}
	}

	r.state = stateDone
	tex := r.image()
	out := r.work.Clone()
	r.applyOffsets(out)
	if r.p.TrainMeshGeometry {
		out.Renormal()
	}
	out.Texture = tex
	log.Info("baking finished", "elapsed", time.Since(start))
	return out, tex.Clone(), nil
}

// step renders one batch and applies the Adam updates, holding the device
// for the whole iteration.
func (r *BakeRun) step(ctx context.Context) (float64, error) {
	var total float64
	err := onDevice(ctx, r.cfg.device, func() error {
		var err error
		total, err = r.iterate(ctx)
		return err
	})
	return total, err
}

func (r *BakeRun) iterate(ctx context.Context) (float64, error) {
	tex := r.image()
	r.applyOffsets(r.work)
	grad := &raster.MeshGrad{Texture: make([]float64, len(r.texture))}
	if r.offsets != nil {
		grad.Positions = make([]float64, len(r.offsets))
	}
	weight := 1 / float64(r.batch)

	var total float64
	for _, idx := range sampleBatch(r.cfg.rng, len(r.views), r.batch) {
		v := r.views[idx]
		l, err := r.viewLoss(ctx, v, tex, grad, weight)
		if err != nil {
			return 0, err
		}
		total += l
	}

	if err := r.adam.Step(groupTexture, r.texture, grad.Texture, r.p.TextureLearningRate); err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeBackwardFailed, "optimizer step", err)
	}
	for i, c := range r.texture {
		r.texture[i] = math.Min(1, math.Max(0, c))
	}
	if r.offsets != nil {
		if err := r.adam.Step(groupGeometry, r.offsets, grad.Positions, r.p.GeometryLearningRate); err != nil {
			return 0, ir.NewResourceError(ir.ErrCodeBackwardFailed, "optimizer step", err)
		}
	}
	return total, nil
}

// viewLoss renders one view over white and adds the weighted gradient of
// its loss into grad. Background pixels are compared against white too.
func (r *BakeRun) viewLoss(ctx context.Context, v refView, tex *ir.Image, grad *raster.MeshGrad, weight float64) (float64, error) {
	view := raster.View{Camera: v.camera, Background: white}
	out, err := r.cfg.mesh.Render(ctx, r.work, tex, view)
	if err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "render mesh view", err)
	}
	target := composite(v.image, v.mask, white)

	dColor := make([]float32, len(out.Color.Pix))
	l, err := loss.MSE(out.Color.Pix, target.Pix, dColor, weight)
	if err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "color loss", err)
	}
	if r.p.MSSSIMLossWeight > 0 {
		ms, err := loss.MSSSIMLoss(out.Color, target, dColor, weight*r.p.MSSSIMLossWeight)
		if err != nil {
			return 0, ir.NewResourceError(ir.ErrCodeRenderFailed, "ms-ssim loss", err)
		}
		l += ms
	}

	if err := r.cfg.mesh.Backward(ctx, r.work, tex, view, out, dColor, grad); err != nil {
		return 0, ir.NewResourceError(ir.ErrCodeBackwardFailed, "backpropagate mesh view", err)
	}
	return l, nil
}

// image converts the optimized texels into an image.
func (r *BakeRun) image() *ir.Image {
	im := ir.NewImage(r.width, r.height)
	for i, v := range r.texture {
		im.Pix[i] = float32(v)
	}
	return im
}

// applyOffsets writes base positions plus offsets into m.
func (r *BakeRun) applyOffsets(m *mesh.Mesh) {
	if r.offsets == nil {
		return
	}
	for i, p := range r.base.Positions {
		m.Positions[i] = p + r.offsets[i]
	}
}
