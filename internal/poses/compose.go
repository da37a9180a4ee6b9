package poses

import (
	"fmt"
	"sort"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Compose merges slices into one gap-free sequence covering image indices
// [0, n-1].
//
// Slices are ordered by Start and walked with an expected next index. The
// first slice that does not start exactly there (a gap, an overlap or a
// duplicate start) fails the whole call: the result is empty, never partial.
// Slices that end before n-1 likewise fail with INCOMPLETE_COVERAGE.
//
// The input slice is not modified.
func Compose(n int, slices []ir.PoseSlice) ([]ir.CameraPose, error) {
	ordered := make([]ir.PoseSlice, len(slices))
	copy(ordered, slices)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	out := make([]ir.CameraPose, 0, max(n, 0))
	expected := 0
	for _, s := range ordered {
		if s.Start != expected {
			return []ir.CameraPose{}, ir.NewUserInputError(ir.ErrCodeSliceMismatch,
				fmt.Sprintf("last end_reference_image_index plus 1 must equal the next start_reference_image_index: expected %d, got %d", expected, s.Start),
				map[string]string{
					"expected_start": fmt.Sprintf("%d", expected),
					"actual_start":   fmt.Sprintf("%d", s.Start),
				})
		}
		out = append(out, s.Poses...)
		expected = s.End + 1
	}

	if expected != max(n, 0) {
		return []ir.CameraPose{}, ir.NewUserInputError(ir.ErrCodeIncompleteCoverage,
			fmt.Sprintf("directives cover images [0, %d) but there are %d reference images", expected, n),
			map[string]string{
				"covered": fmt.Sprintf("%d", expected),
				"images":  fmt.Sprintf("%d", n),
			})
	}

	return out, nil
}

// Result is the outcome of Generate.
type Result struct {
	Poses    []ir.CameraPose `json:"poses"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

// Generate parses command for n reference images and composes the slices.
// Discarded directives are returned as warnings even when composition fails.
func Generate(n int, command string) (Result, error) {
	slices, warnings := Parse(n, command)
	seq, err := Compose(n, slices)
	return Result{Poses: seq, Warnings: warnings}, err
}
