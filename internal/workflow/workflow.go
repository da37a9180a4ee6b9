// Package workflow loads and runs node graphs described in YAML.
//
// A workflow is a list of steps, each executing one node. Step inputs are
// literals or references: "@step.output" names an output of another step,
// "@name" names a workflow input (reference images, masks) loaded before the
// run. References define the dependency graph; it must be acyclic.
//
//	name: orbit_splat
//	description: Reconstruct a Gaussian scene from four views
//	inputs:
//	  images: {kind: images, path: refs}
//	  masks: {kind: masks, path: refs}
//	steps:
//	  - id: poses
//	    node: Generate_Orbit_Camera_Poses
//	    inputs:
//	      reference_images: "@images"
//	      generate_pose_command: "([0:3], 2, 30, 0, 360)"
//	  - id: splat
//	    node: Gaussian_Splatting
//	    inputs:
//	      reference_images: "@images"
//	      reference_masks: "@masks"
//	      reference_orbit_camera_poses: "@poses.orbit_camposes"
//	assertions:
//	  - type: step_succeeded
//	    step: splat
package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is a parsed workflow file.
type Workflow struct {
	// Name identifies the workflow; it also names its golden trace.
	Name string `yaml:"name"`

	// Description explains what the workflow does.
	Description string `yaml:"description"`

	// Inputs are external values loaded before the run.
	Inputs map[string]InputSpec `yaml:"inputs,omitempty"`

	// Steps execute in dependency order; ties keep declaration order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the run.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the directory of the workflow file; input paths resolve against it.
	dir string
}

// InputSpec describes one workflow input.
type InputSpec struct {
	// Kind is "images" or "masks".
	Kind string `yaml:"kind"`

	// Path is a directory of .png/.jpg files, read in name order.
	Path string `yaml:"path"`
}

// Input kinds.
const (
	KindImages = "images"
	KindMasks  = "masks"
)

// Step executes one node.
type Step struct {
	ID     string         `yaml:"id"`
	Node   string         `yaml:"node"`
	Inputs map[string]any `yaml:"inputs,omitempty"`
}

// Assertion checks the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Step is the step the assertion is about.
	Step string `yaml:"step,omitempty"`

	// Code is the expected error code (step_failed).
	Code string `yaml:"code,omitempty"`

	// Output and Value select and compare an output (output_equals, output_count).
	Output string `yaml:"output,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Steps is the expected execution order (step_order).
	Steps []string `yaml:"steps,omitempty"`
}

// Assertion types.
const (
	AssertStepSucceeded = "step_succeeded"
	AssertStepFailed    = "step_failed"
	AssertStepSkipped   = "step_skipped"
	AssertOutputEquals  = "output_equals"
	AssertOutputCount   = "output_count"
	AssertStepOrder     = "step_order"
)

var validID = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads and parses a workflow file.
// Unknown fields are rejected so typos surface early.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, err
	}
	wf.dir = filepath.Dir(path)
	return wf, nil
}

// Parse parses workflow YAML. Input paths resolve against the working directory.
func Parse(data []byte) (*Workflow, error) {
	var wf Workflow
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&wf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := wf.validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	return &wf, nil
}

// Dir returns the directory input paths resolve against.
func (wf *Workflow) Dir() string { return wf.dir }

// validate checks structure only; node names and ports are checked by Check.
func (wf *Workflow) validate() error {
	if wf.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for name, in := range wf.Inputs {
		if !validID.MatchString(name) {
			return fmt.Errorf("input %q: invalid name", name)
		}
		if in.Kind != KindImages && in.Kind != KindMasks {
			return fmt.Errorf("input %q: unknown kind %q", name, in.Kind)
		}
		if in.Path == "" {
			return fmt.Errorf("input %q: path is required", name)
		}
	}
	seen := make(map[string]bool, len(wf.Steps))
	for i, s := range wf.Steps {
		if !validID.MatchString(s.ID) {
			return fmt.Errorf("step %d: invalid id %q", i, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("step %q: duplicate id", s.ID)
		}
		if _, clash := wf.Inputs[s.ID]; clash {
			return fmt.Errorf("step %q: id shadows an input", s.ID)
		}
		seen[s.ID] = true
		if s.Node == "" {
			return fmt.Errorf("step %q: node is required", s.ID)
		}
	}
	for i, a := range wf.Assertions {
		if err := a.validate(seen); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func (a Assertion) validate(steps map[string]bool) error {
	switch a.Type {
	case AssertStepSucceeded, AssertStepFailed, AssertStepSkipped:
	case AssertOutputEquals, AssertOutputCount:
		if a.Output == "" {
			return fmt.Errorf("%s: output is required", a.Type)
		}
	case AssertStepOrder:
		if len(a.Steps) < 2 {
			return fmt.Errorf("%s: needs at least two steps", a.Type)
		}
		for _, s := range a.Steps {
			if !steps[s] {
				return fmt.Errorf("%s: unknown step %q", a.Type, s)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if !steps[a.Step] {
		return fmt.Errorf("%s: unknown step %q", a.Type, a.Step)
	}
	return nil
}

// Ref is a parsed "@..." reference.
type Ref struct {
	// Step is the referenced step, or the input name when Output is empty.
	Step   string
	Output string
}

func (r Ref) String() string {
	if r.Output == "" {
		return "@" + r.Step
	}
	return "@" + r.Step + "." + r.Output
}

// parseRef recognises reference strings. "@@" escapes a literal "@".
func parseRef(v any) (Ref, bool, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "@") || strings.HasPrefix(s, "@@") {
		return Ref{}, false, nil
	}
	step, output, dotted := strings.Cut(s[1:], ".")
	if !validID.MatchString(step) || (dotted && !validID.MatchString(output)) {
		return Ref{}, true, fmt.Errorf("malformed reference %q", s)
	}
	return Ref{Step: step, Output: output}, true, nil
}

// literal unescapes "@@..." strings.
func literal(v any) any {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "@@") {
		return s[1:]
	}
	return v
}
