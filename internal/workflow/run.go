package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/roach88/orbitsplat/internal/engine"
	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/nodes"
)

// Step statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Step      string
	Node      string
	RunID     string
	Seq       int64
	Status    string
	ErrorCode string
	Err       error
	Outputs   nodes.Values
}

// Result is the outcome of a workflow run.
type Result struct {
	Workflow string
	// Steps are in execution order.
	Steps []StepResult
	// Failures are the assertions that did not hold.
	Failures []error
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Step returns the result of the step with the given ID.
func (r *Result) Step(id string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == id {
			return s, true
		}
	}
	return StepResult{}, false
}

// Runner executes workflows on an engine.
type Runner struct {
	engine   *engine.Engine
	registry *nodes.Registry
	logger   *slog.Logger
}

// NewRunner creates a runner. The engine's Run loop must be active while
// workflows execute.
func NewRunner(eng *engine.Engine, reg *nodes.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: eng, registry: reg, logger: logger}
}

// LoadInputs reads the workflow's declared inputs from disk.
func LoadInputs(wf *Workflow) (nodes.Values, error) {
	values := make(nodes.Values, len(wf.Inputs))
	for name, spec := range wf.Inputs {
		dir := spec.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(wf.dir, dir)
		}
		paths, err := imageio.ListImages(dir)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		switch spec.Kind {
		case KindImages:
			ims := make([]*ir.Image, len(paths))
			for i, p := range paths {
				if ims[i], err = imageio.LoadImage(p); err != nil {
					return nil, fmt.Errorf("input %q: %w", name, err)
				}
			}
			values[name] = ims
		case KindMasks:
			masks := make([]*ir.Mask, len(paths))
			for i, p := range paths {
				if masks[i], err = imageio.LoadMask(p); err != nil {
					return nil, fmt.Errorf("input %q: %w", name, err)
				}
			}
			values[name] = masks
		}
	}
	return values, nil
}

// Run checks wf, executes its steps in dependency order and evaluates its
// assertions.
//
// inputs supplies the values of "@name" references; names the workflow
// declares but inputs lacks are an error. A failing step does not stop the
// run: steps that depend on it are skipped, independent steps still run.
func (r *Runner) Run(ctx context.Context, wf *Workflow, inputs nodes.Values) (*Result, error) {
	plan, err := Check(wf, r.registry)
	if err != nil {
		return nil, err
	}
	for name := range wf.Inputs {
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("workflow input %q not provided", name)
		}
	}

	log := r.logger.With("workflow", wf.Name)
	log.Info("workflow starting", "steps", len(wf.Steps))

	result := &Result{Workflow: wf.Name}
	outputs := make(map[string]nodes.Values, len(wf.Steps))
	status := make(map[string]string, len(wf.Steps))

	for _, i := range plan.Order {
		step := wf.Steps[i]
		sr := StepResult{Step: step.ID, Node: step.Node}

		if blocked := blockedBy(plan.Deps[step.ID], status); blocked != "" {
			sr.Status = StatusSkipped
			status[step.ID] = StatusSkipped
			log.Warn("step skipped", "step", step.ID, "blocked_by", blocked)
			result.Steps = append(result.Steps, sr)
			continue
		}

		in := resolveInputs(step, inputs, outputs)
		res, err := r.engine.Execute(ctx, engine.Job{Node: step.Node, Inputs: in})
		sr.RunID, sr.Seq = res.RunID, res.Seq
		if err != nil {
			if res.RunID == "" {
				// The job never ran (engine stopped or ctx done).
				return nil, fmt.Errorf("step %q: %w", step.ID, err)
			}
			sr.Status = StatusFailed
			sr.Err = err
			sr.ErrorCode = errorCode(err)
			log.Error("step failed", "step", step.ID, "node", step.Node, "error", err)
		} else {
			sr.Status = StatusSucceeded
			sr.Outputs = res.Outputs
			outputs[step.ID] = res.Outputs
			log.Info("step finished", "step", step.ID, "node", step.Node, "run_id", res.RunID)
		}
		status[step.ID] = sr.Status
		result.Steps = append(result.Steps, sr)
	}

	result.Failures = evaluate(wf.Assertions, result)
	log.Info("workflow finished", "passed", result.Passed(), "failures", len(result.Failures))
	return result, nil
}

func blockedBy(deps []string, status map[string]string) string {
	for _, d := range deps {
		if status[d] != StatusSucceeded {
			return d
		}
	}
	return ""
}

// resolveInputs substitutes references. Check has already validated them.
func resolveInputs(step Step, inputs nodes.Values, outputs map[string]nodes.Values) nodes.Values {
	in := make(nodes.Values, len(step.Inputs))
	for name, v := range step.Inputs {
		ref, isRef, _ := parseRef(v)
		switch {
		case !isRef:
			in[name] = literal(v)
		case ref.Output == "":
			in[name] = inputs[ref.Step]
		default:
			in[name] = outputs[ref.Step][ref.Output]
		}
	}
	return in
}

func errorCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}
