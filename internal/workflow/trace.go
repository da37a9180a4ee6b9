package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
)

// Trace is the canonical, comparable record of a run. Large values
// (images, scenes, meshes) are reduced to their shape.
type Trace struct {
	Workflow string
	Steps    []TraceStep
	// Root, when set, is stripped from path outputs so traces do not depend
	// on temporary directories.
	Root string
}

// TraceStep is one step in a Trace.
type TraceStep struct {
	Step      string
	Node      string
	RunID     string
	Seq       int64
	Status    string
	ErrorCode string
	Outputs   map[string]any
}

// NewTrace summarises r. root may be empty.
func NewTrace(r *Result, root string) *Trace {
	t := &Trace{Workflow: r.Workflow, Root: root}
	for _, s := range r.Steps {
		ts := TraceStep{
			Step:      s.Step,
			Node:      s.Node,
			RunID:     s.RunID,
			Seq:       s.Seq,
			Status:    s.Status,
			ErrorCode: s.ErrorCode,
		}
		if s.Outputs != nil {
			ts.Outputs = make(map[string]any, len(s.Outputs))
			for k, v := range s.Outputs {
				ts.Outputs[k] = summarize(v, root)
			}
		}
		t.Steps = append(t.Steps, ts)
	}
	return t
}

// Canonical returns the trace as canonical JSON.
func (t *Trace) Canonical() ([]byte, error) {
	steps := make([]any, len(t.Steps))
	for i, s := range t.Steps {
		m := map[string]any{
			"step":   s.Step,
			"node":   s.Node,
			"status": s.Status,
		}
		if s.RunID != "" {
			m["run_id"] = s.RunID
			m["seq"] = s.Seq
		}
		if s.ErrorCode != "" {
			m["error_code"] = s.ErrorCode
		}
		if s.Outputs != nil {
			m["outputs"] = s.Outputs
		}
		steps[i] = m
	}
	return ir.MarshalCanonical(map[string]any{
		"workflow": t.Workflow,
		"steps":    steps,
	})
}

// Text renders the trace for terminals, one line per step.
func (t *Trace) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s\n", t.Workflow)
	for _, s := range t.Steps {
		fmt.Fprintf(&b, "  [%d] %-10s %-28s %s", s.Seq, s.Status, s.Node, s.Step)
		if s.ErrorCode != "" {
			fmt.Fprintf(&b, " (%s)", s.ErrorCode)
		}
		b.WriteByte('\n')
		keys := make([]string, 0, len(s.Outputs))
		for k := range s.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "      %s: %s\n", k, describe(s.Outputs[k]))
		}
	}
	return b.String()
}

// summarize reduces a node value to a canonical-JSON-friendly shape.
func summarize(v any, root string) any {
	switch val := v.(type) {
	case []*ir.Image:
		m := map[string]any{"images": len(val)}
		if len(val) > 0 {
			m["width"], m["height"] = val[0].Width, val[0].Height
		}
		return m
	case []*ir.Mask:
		m := map[string]any{"masks": len(val)}
		if len(val) > 0 {
			m["width"], m["height"] = val[0].Width, val[0].Height
		}
		return m
	case []ir.CameraPose:
		poses := make([]any, len(val))
		for i, p := range val {
			poses[i] = ir.PoseObject(p)
		}
		return poses
	case *gaussian.Artifact:
		return map[string]any{
			"gaussians":  val.Len(),
			"iterations": val.Iterations(),
			"sh_degree":  val.SHDegree(),
		}
	case *mesh.Mesh:
		return map[string]any{
			"vertices":  val.VertexCount(),
			"triangles": val.TriangleCount(),
			"textured":  val.Texture != nil,
		}
	case string:
		if root != "" {
			if rel, err := filepath.Rel(root, val); err == nil && filepath.IsAbs(val) && !strings.HasPrefix(rel, "..") {
				return filepath.ToSlash(rel)
			}
		}
		return val
	case bool, int, int64, float64:
		return val
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// describe is a short human form of a summarized value.
func describe(v any) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("%d poses", len(val))
	case map[string]any:
		data, err := ir.MarshalCanonical(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
