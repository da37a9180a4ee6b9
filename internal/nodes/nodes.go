// Package nodes exposes the domain operations as host graph nodes.
//
// A Node declares typed input and output ports. Execute binds the caller's
// inputs to the ports (filling defaults, coercing numbers and checking
// bounds), runs the node and returns its outputs by port name. A failed
// node returns no outputs; the error says which port or value was wrong.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/trainer"
)

// Values maps port names to values.
type Values map[string]any

// Node is one host node.
type Node struct {
	Name     string
	Category string
	Inputs   []Port
	Outputs  []Port
	// Output marks nodes that write results to disk.
	Output bool

	run RunFunc
}

// RunFunc executes a node on bound inputs.
type RunFunc func(ctx context.Context, env *Env, in Values) (Values, error)

// NewNode builds a node outside the built-in set.
func NewNode(name, category string, inputs, outputs []Port, run RunFunc) *Node {
	return &Node{Name: name, Category: category, Inputs: inputs, Outputs: outputs, run: run}
}

// Input returns the input port called name.
func (n *Node) Input(name string) (Port, bool) {
	for _, p := range n.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Env is what a node sees of its surroundings.
type Env struct {
	Dirs   Dirs
	Logger *slog.Logger
	// Now stamps save-path templates. Default: time.Now.
	Now func() time.Time
	// TrainerOptions are passed to every optimization run the node starts.
	TrainerOptions []trainer.Option
}

func (e *Env) logger(node string) *slog.Logger {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("node", node)
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Registry holds nodes by name.
type Registry struct {
	nodes map[string]*Node
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Default returns a registry with every built-in node.
func Default() *Registry {
	r := NewRegistry()
	for _, n := range builtins() {
		if err := r.Register(n); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds n. Names must be unique.
func (r *Registry) Register(n *Node) error {
	if n.Name == "" {
		return fmt.Errorf("node has no name")
	}
	if _, dup := r.nodes[n.Name]; dup {
		return fmt.Errorf("node %q already registered", n.Name)
	}
	r.nodes[n.Name] = n
	return nil
}

// Lookup returns the node called name.
func (r *Registry) Lookup(name string) (*Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// Names returns every node name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute binds in to the node's inputs and runs it.
func (r *Registry) Execute(ctx context.Context, env *Env, name string, in Values) (Values, error) {
	n, ok := r.Lookup(name)
	if !ok {
		return nil, ir.NewUserInputError(ir.ErrCodeInvalidInput, "unknown node",
			map[string]string{"node": name})
	}
	return n.Execute(ctx, env, in)
}

// Execute binds in to the inputs and runs the node. Inputs the node does
// not declare are rejected.
func (n *Node) Execute(ctx context.Context, env *Env, in Values) (Values, error) {
	if env == nil {
		env = &Env{}
	}
	bound, err := n.bind(in)
	if err != nil {
		env.logger(n.Name).Error("invalid node input", "error", err)
		return nil, err
	}
	out, err := n.run(ctx, env, bound)
	if err != nil {
		env.logger(n.Name).Error("node failed", "error", err)
		return nil, err
	}
	return out, nil
}

func (n *Node) bind(in Values) (Values, error) {
	for name := range in {
		if _, ok := n.Input(name); !ok {
			return nil, portError(n.Name, name, "unknown input")
		}
	}
	bound := make(Values, len(n.Inputs))
	for _, p := range n.Inputs {
		v, ok := in[p.Name]
		if !ok || v == nil {
			if p.Optional {
				continue
			}
			if p.Default == nil {
				return nil, portError(n.Name, p.Name, "missing required input")
			}
			v = p.Default
		}
		cv, err := p.coerce(v)
		if err != nil {
			if ir.IsUserInputError(err) {
				return nil, err
			}
			return nil, portError(n.Name, p.Name, err.Error())
		}
		bound[p.Name] = cv
	}
	return bound, nil
}

func portError(node, port, msg string) error {
	return ir.NewUserInputError(ir.ErrCodePortType, msg,
		map[string]string{"node": node, "port": port})
}

// NodeInfo describes a node for listings.
type NodeInfo struct {
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Output   bool       `json:"output_node,omitempty"`
	Inputs   []PortInfo `json:"inputs"`
	Outputs  []PortInfo `json:"outputs"`
}

// Catalog describes every registered node in name order.
func (r *Registry) Catalog() []NodeInfo {
	var out []NodeInfo
	for _, name := range r.Names() {
		n := r.nodes[name]
		info := NodeInfo{Name: n.Name, Category: n.Category, Output: n.Output}
		for _, p := range n.Inputs {
			info.Inputs = append(info.Inputs, p.Info())
		}
		for _, p := range n.Outputs {
			info.Outputs = append(info.Outputs, p.Info())
		}
		out = append(out, info)
	}
	return out
}
