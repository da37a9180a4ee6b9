package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/orbitsplat/internal/nodes"
)

// CycleError reports steps that depend on each other.
type CycleError struct {
	// Path is one traversal of the cycle: ["a", "b", "a"].
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " → ")
}

// graph maps step ID → IDs of the steps it depends on.
type graph map[string][]string

// Plan is a checked workflow ready to run.
type Plan struct {
	// Order is the execution order of step indices.
	Order []int
	// Deps lists, per step ID, the steps it reads from.
	Deps map[string][]string
}

// Check validates wf against the node registry and orders its steps.
//
// It rejects unknown nodes and ports, references to unknown steps, inputs
// or outputs, and dependency cycles.
func Check(wf *Workflow, reg *nodes.Registry) (*Plan, error) {
	index := make(map[string]int, len(wf.Steps))
	for i, s := range wf.Steps {
		index[s.ID] = i
	}

	g := make(graph, len(wf.Steps))
	for _, s := range wf.Steps {
		n, ok := reg.Lookup(s.Node)
		if !ok {
			return nil, fmt.Errorf("step %q: unknown node %q", s.ID, s.Node)
		}
		g[s.ID] = []string{}
		for _, name := range sortedKeys(s.Inputs) {
			if _, ok := n.Input(name); !ok {
				return nil, fmt.Errorf("step %q: node %s has no input %q", s.ID, s.Node, name)
			}
			ref, isRef, err := parseRef(s.Inputs[name])
			if err != nil {
				return nil, fmt.Errorf("step %q input %q: %w", s.ID, name, err)
			}
			if !isRef {
				continue
			}
			if ref.Output == "" {
				if _, ok := wf.Inputs[ref.Step]; !ok {
					return nil, fmt.Errorf("step %q input %q: unknown workflow input %s", s.ID, name, ref)
				}
				continue
			}
			j, ok := index[ref.Step]
			if !ok {
				return nil, fmt.Errorf("step %q input %q: unknown step in %s", s.ID, name, ref)
			}
			src, _ := reg.Lookup(wf.Steps[j].Node)
			if !hasOutput(src, ref.Output) {
				return nil, fmt.Errorf("step %q input %q: node %s has no output %q", s.ID, name, src.Name, ref.Output)
			}
			g[s.ID] = appendUnique(g[s.ID], ref.Step)
		}
	}

	if err := findCycle(g); err != nil {
		return nil, err
	}
	return &Plan{Order: topoOrder(wf, g), Deps: g}, nil
}

func hasOutput(n *nodes.Node, name string) bool {
	for _, p := range n.Outputs {
		if p.Name == name {
			return true
		}
	}
	return false
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findCycle returns a *CycleError for the first strongly connected
// component that is a cycle, in sorted step order.
func findCycle(g graph) error {
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			sort.Strings(scc)
			return &CycleError{Path: cyclePath(scc, g)}
		}
	}
	return nil
}

func hasSelfLoop(v string, g graph) bool {
	for _, w := range g[v] {
		if w == v {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Vertices are visited in
// sorted order so the result is deterministic.
func tarjanSCC(g graph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	vertices := make([]string, 0, len(g))
	for v := range g {
		vertices = append(vertices, v)
	}
	sort.Strings(vertices)
	for _, v := range vertices {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its first member back to itself.
func cyclePath(scc []string, g graph) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}
	member := make(map[string]bool, len(scc))
	for _, v := range scc {
		member[v] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	for cur := start; ; {
		next := ""
		for _, w := range g[cur] {
			if w == start && len(path) > 1 {
				return append(path, start)
			}
			if member[w] && !visited[w] && next == "" {
				next = w
			}
		}
		if next == "" {
			return append(path, start)
		}
		visited[next] = true
		path = append(path, next)
		cur = next
	}
}

// topoOrder is Kahn's algorithm; among ready steps the earliest declared runs first.
func topoOrder(wf *Workflow, g graph) []int {
	pending := make(map[string]int, len(wf.Steps))
	dependents := make(map[string][]string)
	for _, s := range wf.Steps {
		pending[s.ID] = len(g[s.ID])
		for _, d := range g[s.ID] {
			dependents[d] = append(dependents[d], s.ID)
		}
	}

	order := make([]int, 0, len(wf.Steps))
	done := make(map[string]bool, len(wf.Steps))
	for len(order) < len(wf.Steps) {
		for i, s := range wf.Steps {
			if done[s.ID] || pending[s.ID] > 0 {
				continue
			}
			done[s.ID] = true
			order = append(order, i)
			for _, d := range dependents[s.ID] {
				pending[d]--
			}
			break
		}
	}
	return order
}
