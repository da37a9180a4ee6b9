// Package trainer runs the scene optimizers: Gaussian Splatting
// reconstruction and texture baking onto a mesh.
//
// A run is an explicit mutable context built once from its references and
// parameters. Train drives it to completion and may be called only once.
// Each step renders a random batch of reference views, compares them with
// the masked reference images and updates the scene with Adam.
//
// Thread-safety: a run is owned by one goroutine. Device access is
// serialized through the optional Device so concurrent runs never render
// at the same time.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/camera"
	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
	"github.com/roach88/orbitsplat/internal/raster"
)

// References are the observations a run is fitted to. Images, Masks and
// Poses are matched by index.
type References struct {
	Images []*ir.Image
	Masks  []*ir.Mask
	Poses  []ir.CameraPose
}

// Len returns the number of reference images.
func (r References) Len() int { return len(r.Images) }

// Check reports mismatched counts as COUNT_MISMATCH and an empty set as
// INVALID_INPUT. Sequences are never truncated to fit.
func (r References) Check() error {
	if len(r.Masks) != len(r.Images) {
		return ir.NewCountMismatchError("reference masks", len(r.Images), len(r.Masks))
	}
	if len(r.Poses) != len(r.Images) {
		return ir.NewCountMismatchError("reference camera poses", len(r.Images), len(r.Poses))
	}
	if len(r.Images) == 0 {
		return ir.NewUserInputError(ir.ErrCodeInvalidInput, "no reference images", nil)
	}
	for i, im := range r.Images {
		if im == nil || im.Width == 0 || im.Height == 0 {
			return ir.NewUserInputError(ir.ErrCodeInvalidInput, "empty reference image",
				map[string]string{"index": fmt.Sprintf("%d", i)})
		}
		if r.Masks[i] == nil {
			return ir.NewUserInputError(ir.ErrCodeInvalidInput, "missing reference mask",
				map[string]string{"index": fmt.Sprintf("%d", i)})
		}
	}
	return nil
}

// Device grants exclusive use of the rendering device. Release must be
// called exactly once after a successful Acquire.
type Device interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Step reports one finished optimization iteration.
type Step struct {
	Iteration  int
	Loss       float64
	Gaussians  int // 0 for bake runs
	PositionLR float64
	Elapsed    time.Duration
}

// Observer receives every Step in iteration order.
type Observer func(Step)

type config struct {
	logger    *slog.Logger
	rng       *rand.Rand
	splat     raster.SplatRasterizer
	mesh      raster.MeshRasterizer
	device    Device
	observer  Observer
	seedMesh  *mesh.Mesh
	runID     string
	maxPixels int
}

// Option configures a run.
type Option func(*config)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithSeed makes sampling deterministic.
func WithSeed(seed int64) Option {
	return func(c *config) { c.rng = rand.New(rand.NewSource(seed)) }
}

// WithSplatRasterizer replaces the CPU reference splat rasterizer.
func WithSplatRasterizer(r raster.SplatRasterizer) Option {
	return func(c *config) { c.splat = r }
}

// WithMeshRasterizer replaces the CPU reference mesh rasterizer.
func WithMeshRasterizer(r raster.MeshRasterizer) Option {
	return func(c *config) { c.mesh = r }
}

// WithDevice serializes every optimization step through d.
func WithDevice(d Device) Option {
	return func(c *config) { c.device = d }
}

// WithObserver installs a per-iteration callback.
func WithObserver(o Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithSeedMesh initializes a splatting run from points sampled on m
// instead of a random ball.
func WithSeedMesh(m *mesh.Mesh) Option {
	return func(c *config) { c.seedMesh = m }
}

// WithRunID tags every log line of the run.
func WithRunID(id string) Option {
	return func(c *config) { c.runID = id }
}

// WithMaxResolution downsamples references so no view has more than
// pixels pixels. Zero keeps the original resolution.
func WithMaxResolution(pixels int) Option {
	return func(c *config) { c.maxPixels = pixels }
}

func newConfig(opts []Option) config {
	c := config{
		logger: slog.Default(),
		splat:  raster.Reference{},
		mesh:   raster.ReferenceMesh{},
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.runID != "" {
		c.logger = c.logger.With("run_id", c.runID)
	}
	return c
}

// runState guards Train against reuse.
type runState int

const (
	stateReady runState = iota
	stateRunning
	stateDone
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

func (s *runState) begin() error {
	if *s != stateReady {
		return &ir.Error{
			Kind:    ir.KindUserInput,
			Code:    ir.ErrCodeRunState,
			Message: "Train may only be called once per run",
			Details: map[string]string{"state": s.String()},
		}
	}
	*s = stateRunning
	return nil
}

// refView is one reference prepared for rendering.
type refView struct {
	image  *ir.Image
	mask   *ir.Mask
	camera camera.Camera
}

func prepareViews(refs References, fovy float64, maxPixels int) []refView {
	views := make([]refView, refs.Len())
	for i, im := range refs.Images {
		w, h := im.Width, im.Height
		if maxPixels > 0 && w*h > maxPixels {
			k := math.Sqrt(float64(maxPixels) / float64(w*h))
			w, h = max(1, int(float64(w)*k)), max(1, int(float64(h)*k))
			im = imageio.Resize(im, w, h)
		}
		mask := refs.Masks[i]
		if mask.Width != w || mask.Height != h {
			mask = imageio.ResizeMask(mask, w, h)
		}
		views[i] = refView{image: im, mask: mask, camera: camera.FromPose(refs.Poses[i], fovy, w, h)}
	}
	return views
}

// capBatch limits size to the number of references.
func capBatch(logger *slog.Logger, size, refs int) int {
	if size > refs {
		logger.Warn("batch size exceeds reference count, capping",
			"batch_size", size,
			"references", refs,
		)
		return refs
	}
	return size
}

// sampleBatch draws size reference indices with replacement.
func sampleBatch(rng *rand.Rand, refs, size int) []int {
	batch := make([]int, size)
	for i := range batch {
		batch[i] = rng.Intn(refs)
	}
	return batch
}

var (
	white = [3]float32{1, 1, 1}
	black = [3]float32{0, 0, 0}
)

// pickBackground returns white, or black with probability invert.
func pickBackground(rng *rand.Rand, invert float64) [3]float32 {
	if rng.Float64() < invert {
		return black
	}
	return white
}

// composite blends the reference image over bg using its mask.
func composite(im *ir.Image, mask *ir.Mask, bg [3]float32) *ir.Image {
	out := ir.NewImage(im.Width, im.Height)
	for p, a := range mask.Pix {
		for ch := range 3 {
			out.Pix[3*p+ch] = im.Pix[3*p+ch]*a + bg[ch]*(1-a)
		}
	}
	return out
}

// cameraExtent is the radius of the sphere around the camera centers,
// padded by 10%.
func cameraExtent(views []refView) float64 {
	var c r3.Vec
	for _, v := range views {
		c = r3.Add(c, v.camera.Position)
	}
	c = r3.Scale(1/float64(len(views)), c)
	var r float64
	for _, v := range views {
		r = math.Max(r, r3.Norm(r3.Sub(v.camera.Position, c)))
	}
	return 1.1 * r
}

// onDevice runs fn while holding the device.
func onDevice(ctx context.Context, d Device, fn func() error) error {
	if d == nil {
		return fn()
	}
	release, err := d.Acquire(ctx)
	if err != nil {
		return ir.NewResourceError(ir.ErrCodeDeviceUnavailable, "acquire rendering device", err)
	}
	defer release()
	return fn()
}
