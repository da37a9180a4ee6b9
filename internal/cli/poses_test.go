package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoses_Text(t *testing.T) {
	opts := testRootOptions(t, "text")
	out, err := execute(t, NewPosesCommand(opts), "--count", "4", "--command", "([0:3], 2, 30, 0, 360)")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	for i, az := range []string{"0", "90", "180", "270"} {
		assert.Contains(t, lines[i], "radius=2 elevation=30 azimuth="+az)
	}
}

func TestPoses_JSON(t *testing.T) {
	opts := testRootOptions(t, "json")
	out, err := execute(t, NewPosesCommand(opts), "--count", "2", "--command", "([0:1], 2, 30, 0, 360)")
	require.NoError(t, err)

	data := decodeData(t, out)
	poses := data["poses"].([]any)
	require.Len(t, poses, 2)
	second := poses[1].(map[string]any)
	assert.Equal(t, 180.0, second["azimuth"])
	assert.Equal(t, 30.0, second["elevation"])
	assert.NotContains(t, data, "warnings")
}

func TestPoses_IncompleteCoverage(t *testing.T) {
	opts := testRootOptions(t, "json")
	out, err := execute(t, NewPosesCommand(opts), "--count", "5", "--command", "([0:3], 2, 30, 0, 360)")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))

	cliErr := decodeError(t, out)
	assert.Equal(t, "INCOMPLETE_COVERAGE", cliErr.Code)
}

func TestPoses_CountsImages(t *testing.T) {
	opts := testRootOptions(t, "text")
	writeRefs(t, opts.InputDir, "refs", 3)

	out, err := execute(t, NewPosesCommand(opts), "--images", "refs", "--command", "([0:2], 1.5, 0, 0, 360)")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestPoses_CommandFile(t *testing.T) {
	opts := testRootOptions(t, "text")
	writeFile(t, filepath.Join(opts.InputDir, "poses.txt"),
		"# front half, then back half\n([0:1], 2, 0, 0, 180)\n([2:3], 2, 0, 180, 360)\n")

	out, err := execute(t, NewPosesCommand(opts), "--count", "4", "--command-file", "poses.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "azimuth=90")
	assert.Contains(t, lines[2], "azimuth=180")
}

func TestPoses_ReportsDiscardedDirectives(t *testing.T) {
	opts := testRootOptions(t, "text")
	out, err := execute(t, NewPosesCommand(opts), "--count", "2",
		"--command", "([1:0], 2, 0, 0, 360)\n([0:1], 2, 0, 0, 360)")
	require.NoError(t, err)
	assert.Contains(t, out, "warning: ([1:0], 2, 0, 0, 360)")
}

func TestPoses_MissingImageDir(t *testing.T) {
	opts := testRootOptions(t, "text")
	out, err := execute(t, NewPosesCommand(opts), "--images", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [FILE_NOT_FOUND]")
}

func TestPoses_ExclusiveFlags(t *testing.T) {
	opts := testRootOptions(t, "text")
	_, err := execute(t, NewPosesCommand(opts), "--count", "2", "--images", "refs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}
