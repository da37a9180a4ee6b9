package params

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Kind is the value type of a Field.
type Kind int

const (
	KindInt Kind = iota + 1
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindBool:
		return "BOOLEAN"
	default:
		return "UNKNOWN"
	}
}

// Unbounded marks a Field without an upper limit.
var Unbounded = math.Inf(1)

// Field describes one tunable: its name, type, default and inclusive bounds.
// Bounds apply to the field alone; no field constrains another.
type Field struct {
	Name    string
	Kind    Kind
	Default float64
	Min     float64
	Max     float64
	Step    float64
}

// Check reports whether v is acceptable for f.
func (f Field) Check(v float64) error {
	if math.IsNaN(v) {
		return f.rangeError(v, "is not a number")
	}
	if f.Kind == KindInt && v != math.Trunc(v) {
		return f.rangeError(v, "must be an integer")
	}
	if f.Kind == KindBool && v != 0 && v != 1 {
		return f.rangeError(v, "must be a boolean")
	}
	if v < f.Min {
		return f.rangeError(v, fmt.Sprintf("must be >= %s", formatBound(f.Min)))
	}
	if v > f.Max {
		return f.rangeError(v, fmt.Sprintf("must be <= %s", formatBound(f.Max)))
	}
	return nil
}

func (f Field) rangeError(v float64, why string) error {
	return ir.NewUserInputError(ir.ErrCodeOutOfRange,
		fmt.Sprintf("%s %s", f.Name, why),
		map[string]string{
			"field": f.Name,
			"value": strconv.FormatFloat(v, 'g', -1, 64),
		})
}

func formatBound(b float64) string {
	if math.IsInf(b, 1) {
		return "inf"
	}
	return strconv.FormatFloat(b, 'g', -1, 64)
}

// Lookup returns the field called name from fields.
func Lookup(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// validate checks every value against its field and returns the first
// failure in field declaration order.
func validate(fields []Field, values map[string]float64) error {
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := f.Check(v); err != nil {
			return err
		}
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
