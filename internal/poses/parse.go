package poses

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"golang.org/x/text/width"

	"github.com/roach88/orbitsplat/internal/ir"
)

// DefaultCommand is the template shown to users: a comment line describing
// the directive grammar followed by a full 360° sweep over 31 images.
const DefaultCommand = "#([start_reference_image_index : end_reference_image_index], orbit_radius, elevation_angle [-90, 90], start_azimuth_angle [0, 360], end_azimuth_angle [0, 360])\n([0:30], 1.75, 0, 0, 360)"

// directivePattern matches
//
//	([start:end], radius, elevation, start_azimuth, end_azimuth)
//
// with blanks allowed around every token.
var directivePattern = regexp.MustCompile(
	`\([ \t]*\[[ \t]*(\d+)[ \t]*:[ \t]*(\d+)[ \t]*\][ \t]*,` +
		`[ \t]*([+-]?\d+(?:\.\d*)?)[ \t]*,` +
		`[ \t]*([+-]?\d+(?:\.\d*)?)[ \t]*,` +
		`[ \t]*([+-]?\d+(?:\.\d*)?)[ \t]*,` +
		`[ \t]*([+-]?\d+(?:\.\d*)?)[ \t]*\)`)

// Warning describes a directive that was discarded during parsing.
type Warning struct {
	Directive string `json:"directive"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Reason    string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Directive, w.Reason)
}

// Parse extracts every directive in command and expands it into a PoseSlice
// for a sequence of n reference images.
//
// Text that is not a directive is ignored, wherever it appears.
// The end index is clamped to n-1; a directive whose start exceeds its
// clamped end, or whose angles are out of range, is discarded and reported
// as a Warning while the remaining directives are still parsed.
//
// Parse has no side effects: identical inputs yield identical outputs.
func Parse(n int, command string) ([]ir.PoseSlice, []Warning) {
	var (
		slices   []ir.PoseSlice
		warnings []Warning
	)

	folded := width.Fold.String(command)
	for _, m := range directivePattern.FindAllStringSubmatch(folded, -1) {
		slice, warn, ok := parseDirective(n, m)
		if !ok {
			warnings = append(warnings, warn)
			continue
		}
		slices = append(slices, slice)
	}

	return slices, warnings
}

// parseDirective turns one regexp match into a slice. The bool is false when
// the directive was discarded; the Warning then explains why.
func parseDirective(n int, m []string) (ir.PoseSlice, Warning, bool) {
	directive := m[0]

	start, errStart := strconv.Atoi(m[1])
	end, errEnd := strconv.Atoi(m[2])
	if errStart != nil || errEnd != nil {
		return ir.PoseSlice{}, Warning{Directive: directive, Reason: "index is not a valid integer"}, false
	}

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(m[3+i], 64)
		if err != nil {
			return ir.PoseSlice{}, Warning{Directive: directive, Start: start, End: end,
				Reason: fmt.Sprintf("%q is not a valid number", m[3+i])}, false
		}
		vals[i] = v
	}
	radius, elevation, startAz, endAz := vals[0], vals[1], vals[2], vals[3]

	end = min(end, n-1)
	if start > end {
		return ir.PoseSlice{}, Warning{Directive: directive, Start: start, End: end,
			Reason: fmt.Sprintf("start_reference_image_index: %d must be smaller than or equal to end_reference_image_index: %d", start, end)}, false
	}
	if elevation < -90 || elevation > 90 {
		return ir.PoseSlice{}, Warning{Directive: directive, Start: start, End: end,
			Reason: fmt.Sprintf("elevation %g is outside [-90, 90]", elevation)}, false
	}
	if startAz < 0 || startAz > 360 || endAz < 0 || endAz > 360 {
		return ir.PoseSlice{}, Warning{Directive: directive, Start: start, End: end,
			Reason: fmt.Sprintf("azimuths %g, %g must lie in [0, 360]", startAz, endAz)}, false
	}

	count := end - start + 1
	return ir.PoseSlice{
		Start: start,
		End:   end,
		Poses: orbitSweep(count, radius, elevation, startAz, endAz),
	}, Warning{}, true
}

// orbitSweep produces count evenly spaced azimuth samples beginning at
// startAz. When startAz > endAz the step is negative and the samples run
// backwards from startAz; otherwise they run forwards towards endAz.
// The step divides the arc by count, so a 0→360 sweep never repeats its
// first view.
func orbitSweep(count int, radius, elevation, startAz, endAz float64) []ir.CameraPose {
	var step float64
	if startAz > endAz {
		step = -(endAz + 360 - startAz) / float64(count)
	} else {
		step = (endAz - startAz) / float64(count)
	}

	out := make([]ir.CameraPose, count)
	az := mod360(startAz)
	for i := range out {
		out[i] = ir.CameraPose{Radius: radius, Elevation: elevation, Azimuth: az}
		az = mod360(az + step)
	}
	return out
}

// mod360 reduces a into [0, 360).
func mod360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
