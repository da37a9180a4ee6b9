package nodes

import (
	"fmt"
	"math"

	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
	"github.com/roach88/orbitsplat/internal/params"
)

// PortType names the kind of value a port carries.
type PortType string

const (
	TypeImage       PortType = "IMAGE"          // []*ir.Image
	TypeMask        PortType = "MASK"           // []*ir.Mask
	TypeMesh        PortType = "MESH"           // *mesh.Mesh
	TypeGaussians   PortType = "GS_RAW"         // *gaussian.Artifact
	TypeCameraPoses PortType = "ORBIT_CAMPOSES" // []ir.CameraPose
	TypeString      PortType = "STRING"
	TypeInt         PortType = "INT"
	TypeFloat       PortType = "FLOAT"
	TypeBool        PortType = "BOOLEAN"
)

// Port is one typed node input or output.
type Port struct {
	Name     string
	Type     PortType
	Default  any
	Optional bool
	// Multiline marks free-text inputs.
	Multiline bool
	// Bounds holds the limits of numeric ports.
	Bounds *params.Field
}

// fieldPort turns a parameter field into a numeric port.
func fieldPort(f params.Field) Port {
	p := Port{Name: f.Name, Bounds: &f}
	switch f.Kind {
	case params.KindInt:
		p.Type, p.Default = TypeInt, int(f.Default)
	case params.KindBool:
		p.Type, p.Default = TypeBool, f.Default != 0
	default:
		p.Type, p.Default = TypeFloat, f.Default
	}
	return p
}

// fieldPorts returns ports for fields in order, skipping those named in skip.
func fieldPorts(fields []params.Field, skip ...string) []Port {
	var ports []Port
	for _, f := range fields {
		skipped := false
		for _, s := range skip {
			skipped = skipped || s == f.Name
		}
		if !skipped {
			ports = append(ports, fieldPort(f))
		}
	}
	return ports
}

// coerce converts v to the Go type of the port and checks numeric bounds.
// Numbers decoded from text (float64, int64) are accepted for INT ports
// when they are integral.
func (p Port) coerce(v any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(p, v)
		}
		return s, nil
	case TypeInt:
		f, ok := number(v)
		if !ok || f != math.Trunc(f) {
			return nil, typeMismatch(p, v)
		}
		if err := p.checkBounds(f); err != nil {
			return nil, err
		}
		return int(f), nil
	case TypeFloat:
		f, ok := number(v)
		if !ok {
			return nil, typeMismatch(p, v)
		}
		if err := p.checkBounds(f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(p, v)
		}
		return b, nil
	case TypeImage:
		switch im := v.(type) {
		case []*ir.Image:
			return im, nil
		case *ir.Image:
			return []*ir.Image{im}, nil
		}
	case TypeMask:
		switch m := v.(type) {
		case []*ir.Mask:
			return m, nil
		case *ir.Mask:
			return []*ir.Mask{m}, nil
		}
	case TypeMesh:
		if m, ok := v.(*mesh.Mesh); ok && m != nil {
			return m, nil
		}
	case TypeGaussians:
		if a, ok := v.(*gaussian.Artifact); ok && a != nil {
			return a, nil
		}
	case TypeCameraPoses:
		if ps, ok := v.([]ir.CameraPose); ok {
			return ps, nil
		}
	}
	return nil, typeMismatch(p, v)
}

func (p Port) checkBounds(v float64) error {
	if p.Bounds == nil {
		return nil
	}
	return p.Bounds.Check(v)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func typeMismatch(p Port, v any) error {
	return fmt.Errorf("want %s, got %T", p.Type, v)
}

// fieldValues collects the numeric inputs named by fields.
func fieldValues(fields []params.Field, in Values) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for _, f := range fields {
		switch v := in[f.Name].(type) {
		case int:
			out[f.Name] = float64(v)
		case float64:
			out[f.Name] = v
		case bool:
			if v {
				out[f.Name] = 1
			} else {
				out[f.Name] = 0
			}
		}
	}
	return out
}

// FieldInputs turns parameter values into node inputs typed like the
// ports built from fields. Names outside fields are dropped.
func FieldInputs(fields []params.Field, values map[string]float64) Values {
	in := make(Values, len(values))
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		switch f.Kind {
		case params.KindInt:
			in[f.Name] = int(v)
		case params.KindBool:
			in[f.Name] = v != 0
		default:
			in[f.Name] = v
		}
	}
	return in
}

// PortInfo describes a port for listings.
type PortInfo struct {
	Name     string   `json:"name"`
	Type     PortType `json:"type"`
	Default  any      `json:"default,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

// Info returns the listing form of p. Unbounded limits are omitted.
func (p Port) Info() PortInfo {
	info := PortInfo{Name: p.Name, Type: p.Type, Default: p.Default, Optional: p.Optional}
	if p.Bounds != nil && p.Type != TypeBool {
		lo, hi := p.Bounds.Min, p.Bounds.Max
		info.Min = &lo
		if !math.IsInf(hi, 1) {
			info.Max = &hi
		}
	}
	return info
}
