package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/orbitsplat/internal/nodes"
	"github.com/roach88/orbitsplat/internal/store"
	"github.com/roach88/orbitsplat/internal/trainer"
)

// Job is one node execution.
type Job struct {
	Node   string
	Inputs nodes.Values
	// Observer, if set, also receives every optimization step of the job.
	Observer trainer.Observer
}

// Result is the outcome of a job.
type Result struct {
	RunID   string
	Seq     int64
	Node    string
	Outputs nodes.Values
	Err     error
}

// Handle tracks a submitted job.
type Handle struct {
	ID  string
	Seq int64

	job    Job
	done   chan struct{}
	result Result
}

func newHandle(id string, seq int64, job Job) *Handle {
	return &Handle{ID: id, Seq: seq, job: job, done: make(chan struct{})}
}

// Done is closed once the job has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the job finishes or ctx is done. A job that ran and
// failed returns its Result with Err set; the second return value is only
// non-nil when ctx ended first.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) finish(r Result) {
	h.result = r
	close(h.done)
}

// Engine is the single-writer job loop.
//
// Submit is safe from any goroutine; Run must be called from exactly one.
// Jobs execute one at a time in submission (seq) order, so an optimization
// run never blocks the goroutine that asked for it and the run store only
// ever has one writer.
type Engine struct {
	registry *nodes.Registry
	env      nodes.Env
	store    *store.Store
	clock    *Clock
	ids      IDGenerator
	device   *Device
	logger   *slog.Logger
	now      func() time.Time
	queue    *jobQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore records every job as a run, with its loss history.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the seq source. Default: a clock resumed from the store.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDevice shares d with every optimization run. Default: a private device.
func WithDevice(d *Device) Option {
	return func(e *Engine) { e.device = d }
}

// WithEnv sets the environment passed to nodes.
func WithEnv(env nodes.Env) Option {
	return func(e *Engine) { e.env = env }
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow sets the wall clock used for run timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine executing nodes from registry.
//
// With a store and no explicit clock, seq numbering resumes after the last
// recorded run.
func New(registry *nodes.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		registry: registry,
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		now:      time.Now,
		queue:    newJobQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.device == nil {
		e.device = NewDevice("cpu")
	}
	if e.env.Logger == nil {
		e.env.Logger = e.logger
	}
	if e.env.Now == nil {
		e.env.Now = e.now
	}
	if e.clock == nil {
		e.clock = NewClock()
		if e.store != nil {
			last, err := e.store.LastSeq(context.Background())
			if err != nil {
				return nil, fmt.Errorf("resume clock: %w", err)
			}
			e.clock.advanceTo(last)
		}
	}
	return e, nil
}

// Submit queues job and returns its handle.
// Thread-safe. Fails with ENGINE_STOPPED once Stop has been called.
func (e *Engine) Submit(job Job) (*Handle, error) {
	h := newHandle(e.ids.Generate(), e.clock.Next(), job)
	if !e.queue.Enqueue(h) {
		return nil, newStoppedError(h.ID)
	}
	e.logger.Debug("job submitted", "run_id", h.ID, "seq", h.Seq, "node", job.Node)
	return h, nil
}

// Execute submits job and waits for it. Run must be active.
func (e *Engine) Execute(ctx context.Context, job Job) (Result, error) {
	h, err := e.Submit(job)
	if err != nil {
		return Result{}, err
	}
	r, err := h.Wait(ctx)
	if err != nil {
		return Result{}, err
	}
	return r, r.Err
}

// QueueLen returns the number of jobs waiting to run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run executes queued jobs until ctx is done or Stop is called.
//
// After Stop, jobs already queued still run and Run returns nil once the
// queue is empty. When ctx ends first, queued jobs fail with ENGINE_STOPPED
// and Run returns ctx.Err().
//
// A failing job never stops the loop; its error is logged, recorded and
// delivered through its handle. No job is retried.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "device", e.device.Name())

	for {
		if ctx.Err() != nil {
			return e.abort(ctx)
		}
		if h, ok := e.queue.TryDequeue(); ok {
			e.process(ctx, h)
			continue
		}

		select {
		case <-ctx.Done():
			return e.abort(ctx)

		case <-e.queue.Wait():
			// A closed queue keeps signalling; exit once it is empty.
			if e.queue.Len() == 0 && e.queue.isClosed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// abort closes the queue and fails every job still waiting.
func (e *Engine) abort(ctx context.Context) error {
	e.logger.Info("engine stopping: context cancelled", "dropped", e.queue.Len())
	e.queue.Close()
	for _, h := range e.queue.Drain() {
		h.finish(Result{RunID: h.ID, Seq: h.Seq, Node: h.job.Node, Err: newStoppedError(h.ID)})
	}
	return ctx.Err()
}

// Stop closes the queue. Run finishes the queued jobs, then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// process runs one job. Called only from the Run goroutine.
func (e *Engine) process(ctx context.Context, h *Handle) {
	log := e.logger.With("run_id", h.ID, "seq", h.Seq, "node", h.job.Node)
	start := e.now()
	log.Info("job started")

	e.startRun(ctx, log, h, start)

	env := e.env
	env.Logger = env.Logger.With("run_id", h.ID)
	env.TrainerOptions = append(append([]trainer.Option(nil), e.env.TrainerOptions...),
		trainer.WithRunID(h.ID),
		trainer.WithDevice(e.device),
		trainer.WithObserver(e.observer(ctx, log, h)),
	)

	out, err := e.execute(ctx, &env, h)

	e.finishRun(ctx, log, h, err)
	if err != nil {
		log.Error("job failed", "error", err, "elapsed", e.now().Sub(start))
	} else {
		log.Info("job finished", "elapsed", e.now().Sub(start))
	}
	h.finish(Result{RunID: h.ID, Seq: h.Seq, Node: h.job.Node, Outputs: out, Err: err})
}

func (e *Engine) execute(ctx context.Context, env *nodes.Env, h *Handle) (out nodes.Values, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = nil, newPanicError(h.ID, h.job.Node, v)
		}
	}()
	return e.registry.Execute(ctx, env, h.job.Node, h.job.Inputs)
}

// observer forwards steps to the job's observer and the run store.
// Store failures are logged; they never fail the run.
func (e *Engine) observer(ctx context.Context, log *slog.Logger, h *Handle) trainer.Observer {
	return func(s trainer.Step) {
		if h.job.Observer != nil {
			h.job.Observer(s)
		}
		if e.store == nil {
			return
		}
		err := e.store.RecordStep(ctx, store.Step{
			RunID:      h.ID,
			Iteration:  s.Iteration,
			Loss:       s.Loss,
			Gaussians:  s.Gaussians,
			PositionLR: s.PositionLR,
			Elapsed:    s.Elapsed,
		})
		if err != nil {
			log.Warn("record step failed", "iteration", s.Iteration, "error", err)
		}
	}
}

func (e *Engine) startRun(ctx context.Context, log *slog.Logger, h *Handle, start time.Time) {
	if e.store == nil {
		return
	}
	err := e.store.StartRun(ctx, store.Run{
		ID:        h.ID,
		Seq:       h.Seq,
		Node:      h.job.Node,
		Params:    scalarParams(h.job.Inputs),
		StartedAt: start,
	})
	if err != nil {
		log.Warn("record run start failed", "error", err)
	}
}

func (e *Engine) finishRun(ctx context.Context, log *slog.Logger, h *Handle, runErr error) {
	if e.store == nil {
		return
	}
	if err := e.store.FinishRun(ctx, h.ID, e.now(), runErr); err != nil {
		log.Warn("record run finish failed", "error", err)
	}
}

// scalarParams keeps the inputs that describe a run's settings.
// Images, meshes and pose lists are omitted.
func scalarParams(in nodes.Values) map[string]any {
	params := make(map[string]any)
	for k, v := range in {
		switch val := v.(type) {
		case string, bool, int, int64, float64:
			params[k] = val
		case float32:
			params[k] = float64(val)
		}
	}
	return params
}
