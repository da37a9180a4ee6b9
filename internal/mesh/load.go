package mesh

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Extensions lists the mesh formats Load and Write accept.
var Extensions = []string{".obj", ".ply", ".glb"}

// LoadOptions are the post-processing steps applied after decoding.
type LoadOptions struct {
	Resize   bool // center and fit into a FitSize box
	Renormal bool // recompute vertex normals
	Retex    bool // drop the texture and rebuild UVs
}

// Load reads a mesh file. Unsupported extensions and missing files are
// user-input errors.
func Load(path string, opts LoadOptions) (*Mesh, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supported(ext) {
		return nil, unsupported(path, ext)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, ir.NewUserInputError(ir.ErrCodeFileNotFound, "mesh file not found", map[string]string{"path": path})
	}

	var m *Mesh
	var err error
	switch ext {
	case ".obj":
		m, err = loadFile(path, func(f *os.File) (*Mesh, error) { return ReadOBJ(f, filepath.Dir(path)) })
	case ".ply":
		m, err = loadFile(path, func(f *os.File) (*Mesh, error) { return ReadPLY(f) })
	case ".glb":
		m, err = loadGLB(path)
	}
	if err != nil {
		return nil, ir.NewUserInputError(ir.ErrCodeInvalidInput,
			fmt.Sprintf("decode mesh: %v", err), map[string]string{"path": path})
	}

	if opts.Resize {
		m.Resize()
	}
	if opts.Renormal || len(m.Normals) != len(m.Positions) {
		m.Renormal()
	}
	if opts.Retex {
		m.Retex()
	}
	return m, nil
}

func loadFile(path string, decode func(*os.File) (*Mesh, error)) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f)
}

// Write saves m to path, choosing the format from the extension and
// creating parent directories. OBJ files get a sibling .mtl and albedo PNG
// when the mesh is textured.
func (m *Mesh) Write(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supported(ext) {
		return unsupported(path, ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	var err error
	switch ext {
	case ".obj":
		err = saveOBJ(path, m)
	case ".ply":
		err = savePLY(path, m)
	case ".glb":
		err = saveGLB(path, m)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func supported(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func unsupported(path, ext string) error {
	return ir.NewUserInputError(ir.ErrCodeUnsupportedExtension,
		fmt.Sprintf("unsupported mesh extension %q (want one of %s)", ext, strings.Join(Extensions, ", ")),
		map[string]string{"path": path})
}
