package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbitsplat/internal/engine"
	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/testutil"
)

const triangleOBJ = "v -0.5 -0.5 0\nv 0.5 -0.5 0\nv 0 0.5 0\nf 1 2 3\n"

// testRootOptions returns options rooted in a temp dir with deterministic
// run IDs and clock.
func testRootOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	return &RootOptions{
		Format:      format,
		InputDir:    dir,
		OutputDir:   filepath.Join(dir, "out"),
		IDGenerator: engine.NewSequenceGenerator("run"),
		Now:         testutil.NewStepClock(testutil.Epoch, time.Second).Now,
	}
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeRefs writes n solid reference images into dir/name.
func writeRefs(t *testing.T, dir, name string, n int) {
	t.Helper()
	for i := range n {
		im := testutil.SolidImage(8, [3]float32{0.9, 0.4, float32(i) / float32(n)})
		path := filepath.Join(dir, name, "view_"+string(rune('a'+i))+".png")
		require.NoError(t, imageio.SavePNG(path, im))
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// decodeData decodes a JSON CLIResponse and returns its data.
func decodeData(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status, out)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is an object: %s", out)
	return data
}

// decodeError decodes a JSON error response.
func decodeError(t *testing.T, out string) *CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "error", resp.Status, out)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func jsonUnmarshal(out string, v any) error {
	return json.Unmarshal([]byte(out), v)
}
