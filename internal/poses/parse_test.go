package poses

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbitsplat/internal/ir"
)

func azimuths(slices []ir.PoseSlice) []float64 {
	var out []float64
	for _, s := range slices {
		for _, p := range s.Poses {
			out = append(out, p.Azimuth)
		}
	}
	return out
}

func TestParse_SingleDirective(t *testing.T) {
	slices, warnings := Parse(4, "([0:3], 2, 30, 0, 360)")
	require.Empty(t, warnings)
	require.Len(t, slices, 1)

	s := slices[0]
	assert.Equal(t, 0, s.Start)
	assert.Equal(t, 3, s.End)
	require.Len(t, s.Poses, 4)
	assert.Equal(t, []float64{0, 90, 180, 270}, azimuths(slices))
	for _, p := range s.Poses {
		assert.Equal(t, 2.0, p.Radius)
		assert.Equal(t, 30.0, p.Elevation)
		assert.Equal(t, [3]float64{}, p.Center)
	}
}

func TestParse_WhitespaceTolerant(t *testing.T) {
	compact, _ := Parse(10, "([0:9],1.5,10,0,180)")
	spaced, _ := Parse(10, "(  [ 0 :\t9 ] ,  1.5 , 10 ,\t0 , 180 )")
	require.Len(t, compact, 1)
	assert.Empty(t, cmp.Diff(compact, spaced))
}

func TestParse_IgnoresNonDirectiveText(t *testing.T) {
	slices, warnings := Parse(5, "front views please\n([0:4], 1, 0, 0, 90) and more text (not [a:b])")
	assert.Empty(t, warnings)
	require.Len(t, slices, 1)
	assert.Equal(t, 5, slices[0].Len())
}

func TestParse_DirectivesInsideCommentsStillCount(t *testing.T) {
	slices, warnings := Parse(4, "# ([0:1], 1, 0, 0, 90)\n# note: ([2:3], 1, 0, 90, 180)")
	assert.Empty(t, warnings)
	require.Len(t, slices, 2)
	assert.Equal(t, 0, slices[0].Start)
	assert.Equal(t, 2, slices[1].Start)
}

func TestParse_DefaultCommand(t *testing.T) {
	slices, warnings := Parse(31, DefaultCommand)
	assert.Empty(t, warnings)
	require.Len(t, slices, 1)
	assert.Len(t, slices[0].Poses, 31)
}

func TestParse_FullWidthInput(t *testing.T) {
	slices, warnings := Parse(4, "（［０：３］， ２， ３０， ０， ３６０）")
	assert.Empty(t, warnings)
	require.Len(t, slices, 1)
	assert.Equal(t, []float64{0, 90, 180, 270}, azimuths(slices))
}

func TestParse_AzimuthWrap(t *testing.T) {
	slices, warnings := Parse(4, "([0:3], 1.5, 0, 350, 10)")
	require.Empty(t, warnings)
	require.Len(t, slices, 1)

	// start > end: the step is -(10+360-350)/4 = -5.
	assert.Equal(t, []float64{350, 345, 340, 335}, azimuths(slices))
}

func TestParse_AzimuthWrapCrossesZero(t *testing.T) {
	slices, _ := Parse(3, "([0:2], 1, 0, 10, 5)")
	require.Len(t, slices, 1)

	// step = -(5+360-10)/3; results stay in [0, 360).
	want := []float64{10, 10 - 355.0/3 + 360, 10 - 2*355.0/3 + 360}
	got := azimuths(slices)
	require.Len(t, got, 3)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
		assert.GreaterOrEqual(t, got[i], 0.0)
		assert.Less(t, got[i], 360.0)
	}
}

func TestParse_EndClamped(t *testing.T) {
	slices, warnings := Parse(30, "([0:999], 1.75, 0, 0, 360)")
	require.Empty(t, warnings)
	require.Len(t, slices, 1)
	assert.Equal(t, 29, slices[0].End)
	assert.Len(t, slices[0].Poses, 30)

	got := azimuths(slices)
	for i, az := range got {
		assert.InDelta(t, float64(i)*12, az, 1e-9)
	}
}

func TestParse_StartAfterEndDiscarded(t *testing.T) {
	cmd := "([0:4], 1, 0, 0, 90)\n([12:20], 1, 0, 0, 90)\n([5:9], 1, 0, 90, 180)"
	slices, warnings := Parse(10, cmd)

	require.Len(t, warnings, 1)
	assert.Equal(t, 12, warnings[0].Start)
	assert.Equal(t, 9, warnings[0].End)
	assert.Contains(t, warnings[0].Reason, "12")

	require.Len(t, slices, 2)
	assert.Equal(t, 0, slices[0].Start)
	assert.Equal(t, 5, slices[1].Start)
}

func TestParse_AngleBounds(t *testing.T) {
	tests := []struct {
		name    string
		command string
		valid   bool
	}{
		{"negative elevation", "([0:1], 1, -45, 0, 90)", true},
		{"elevation at bound", "([0:1], 1, 90, 0, 90)", true},
		{"elevation too high", "([0:1], 1, 91, 0, 90)", false},
		{"elevation too low", "([0:1], 1, -90.5, 0, 90)", false},
		{"azimuth over 360", "([0:1], 1, 0, 0, 361)", false},
		{"azimuth negative", "([0:1], 1, 0, -10, 90)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slices, warnings := Parse(2, tt.command)
			if tt.valid {
				assert.Len(t, slices, 1)
				assert.Empty(t, warnings)
			} else {
				assert.Empty(t, slices)
				assert.Len(t, warnings, 1)
			}
		})
	}
}

func TestParse_StartAzimuth360Normalised(t *testing.T) {
	slices, _ := Parse(2, "([0:1], 1, 0, 360, 360)")
	require.Len(t, slices, 1)
	assert.Equal(t, []float64{0, 0}, azimuths(slices))
}

func TestParse_Idempotent(t *testing.T) {
	cmd := "([0:9], 1.75, 15, 300, 60)\n([10:19], 2, -10, 0, 180)"
	a, wa := Parse(20, cmd)
	b, wb := Parse(20, cmd)
	assert.Empty(t, cmp.Diff(a, b))
	assert.Equal(t, wa, wb)
}

func TestParse_NoImages(t *testing.T) {
	slices, warnings := Parse(0, "([0:3], 1, 0, 0, 90)")
	assert.Empty(t, slices)
	assert.Len(t, warnings, 1)
}
