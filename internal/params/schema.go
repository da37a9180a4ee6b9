package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Definition names inside the generated schema.
const (
	TrainingDefinition = "#Training"
	BakeDefinition     = "#Bake"
)

// Schema returns the CUE source that constrains parameter files. It is
// generated from TrainingFields and BakeFields so the file schema and
// NewTraining/NewBake can never disagree on bounds.
func Schema() string {
	var b strings.Builder
	writeDefinition(&b, TrainingDefinition, TrainingFields)
	b.WriteString("\n")
	writeDefinition(&b, BakeDefinition, BakeFields)
	return b.String()
}

func writeDefinition(b *strings.Builder, name string, fields []Field) {
	fmt.Fprintf(b, "%s: {\n", name)
	for _, f := range fields {
		fmt.Fprintf(b, "\t%s?: %s\n", f.Name, constraint(f))
	}
	b.WriteString("}\n")
}

// constraint renders the CUE expression for one field, e.g.
// "int & >=1 & <=64".
func constraint(f Field) string {
	if f.Kind == KindBool {
		return "bool"
	}
	parts := []string{"number"}
	if f.Kind == KindInt {
		parts[0] = "int"
	}
	if !math.IsInf(f.Min, -1) {
		parts = append(parts, ">="+cueNumber(f.Min, f.Kind))
	}
	if !math.IsInf(f.Max, 1) {
		parts = append(parts, "<="+cueNumber(f.Max, f.Kind))
	}
	return strings.Join(parts, " & ")
}

func cueNumber(v float64, k Kind) string {
	if k == KindInt {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
