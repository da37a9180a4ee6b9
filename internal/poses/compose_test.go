package poses

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbitsplat/internal/ir"
)

func TestCompose_ContiguousSlices(t *testing.T) {
	result, err := Generate(10, "([5:9], 1, 0, 180, 360)\n([0:4], 1, 0, 0, 180)")
	require.NoError(t, err)
	require.Len(t, result.Poses, 10)

	// Slices are ordered by start, not by their position in the text.
	assert.Equal(t, 0.0, result.Poses[0].Azimuth)
	assert.Equal(t, 180.0, result.Poses[5].Azimuth)
}

func TestCompose_GapYieldsEmpty(t *testing.T) {
	result, err := Generate(10, "([0:4], 1, 0, 0, 90)\n([6:9], 1, 0, 0, 90)")
	require.Error(t, err)
	assert.Empty(t, result.Poses)
	assert.True(t, ir.IsUserInputError(err))
	assert.Equal(t, ir.ErrCodeSliceMismatch, ir.CodeOf(err))
	assert.Contains(t, err.Error(), "expected_start=5")
	assert.Contains(t, err.Error(), "actual_start=6")
}

func TestCompose_OverlapYieldsEmpty(t *testing.T) {
	result, err := Generate(10, "([0:5], 1, 0, 0, 90)\n([4:9], 1, 0, 0, 90)")
	require.Error(t, err)
	assert.Empty(t, result.Poses)
	assert.Equal(t, ir.ErrCodeSliceMismatch, ir.CodeOf(err))
}

func TestCompose_DuplicateStartYieldsEmpty(t *testing.T) {
	result, err := Generate(4, "([0:3], 1, 0, 0, 90)\n([0:3], 2, 0, 0, 90)")
	require.Error(t, err)
	assert.Empty(t, result.Poses)
}

func TestCompose_IncompleteCoverage(t *testing.T) {
	result, err := Generate(10, "([0:4], 1, 0, 0, 90)")
	require.Error(t, err)
	assert.Empty(t, result.Poses)
	assert.Equal(t, ir.ErrCodeIncompleteCoverage, ir.CodeOf(err))
}

func TestCompose_NoDirectives(t *testing.T) {
	_, err := Generate(3, "nothing to see here")
	assert.Equal(t, ir.ErrCodeIncompleteCoverage, ir.CodeOf(err))

	result, err := Generate(0, "")
	require.NoError(t, err)
	assert.Empty(t, result.Poses)
}

func TestCompose_DiscardedDirectiveStillReported(t *testing.T) {
	result, err := Generate(10, "([0:9], 1, 0, 0, 90)\n([15:20], 1, 0, 0, 90)")
	require.NoError(t, err)
	assert.Len(t, result.Poses, 10)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, 15, result.Warnings[0].Start)
}

func TestCompose_DoesNotMutateInput(t *testing.T) {
	slices := []ir.PoseSlice{
		{Start: 2, End: 3, Poses: make([]ir.CameraPose, 2)},
		{Start: 0, End: 1, Poses: make([]ir.CameraPose, 2)},
	}
	_, err := Compose(4, slices)
	require.NoError(t, err)
	assert.Equal(t, 2, slices[0].Start)
}

// randomCover splits [0, n-1] into random contiguous ranges and writes them
// as directives in shuffled order.
func randomCover(rng *rand.Rand, n int) string {
	var lines []string
	for start := 0; start < n; {
		end := start + rng.Intn(n-start)
		lines = append(lines, fmt.Sprintf("([%d:%d], %d.5, %d, %d, %d)",
			start, end, 1+rng.Intn(3), rng.Intn(90), rng.Intn(360), rng.Intn(360)))
		start = end + 1
	}
	rng.Shuffle(len(lines), func(i, j int) { lines[i], lines[j] = lines[j], lines[i] })
	return strings.Join(lines, "\n")
}

func TestCompose_CoverProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 64; n++ {
		cmd := randomCover(rng, n)
		result, err := Generate(n, cmd)
		require.NoError(t, err, "n=%d command=%q", n, cmd)
		require.Len(t, result.Poses, n)

		for _, p := range result.Poses {
			assert.GreaterOrEqual(t, p.Azimuth, 0.0)
			assert.Less(t, p.Azimuth, 360.0)
		}

		again, err := Generate(n, cmd)
		require.NoError(t, err)
		assert.Equal(t, result, again)
	}
}

func TestGenerate_Golden(t *testing.T) {
	result, err := Generate(4, "([0:3], 2, 30, 0, 360)")
	require.NoError(t, err)

	data, err := ir.MarshalCanonical(result.Poses)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "quarter_sweep", data)
}
