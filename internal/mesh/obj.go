package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/EliCDavis/polyform/formats/obj"

	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
)

// ReadOBJ decodes a Wavefront OBJ stream. Material libraries are resolved
// relative to dir; pass "" to skip them.
func ReadOBJ(r io.Reader, dir string) (*Mesh, error) {
	pm, mtllibs, err := obj.ReadMesh(r)
	if err != nil {
		return nil, err
	}
	m, err := fromModel(*pm)
	if err != nil {
		return nil, err
	}
	if len(mtllibs) > 0 && dir != "" {
		tex, err := loadTexture(dir, mtllibs[0])
		if err != nil {
			return nil, err
		}
		m.Texture = tex
	}
	return m, nil
}

// loadTexture reads the first map_Kd of a material library.
func loadTexture(dir, mtllib string) (*ir.Image, error) {
	f, err := os.Open(filepath.Join(dir, mtllib))
	if err != nil {
		// A missing material library leaves the mesh untextured.
		return nil, nil
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "map_Kd" {
			continue
		}
		path := fields[len(fields)-1]
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return imageio.LoadImage(path)
	}
	return nil, sc.Err()
}

// WriteOBJ encodes m as OBJ. When the mesh has a texture, mtlName names the
// material library the caller writes next to it.
func WriteOBJ(w io.Writer, m *Mesh, mtlName string) error {
	return obj.WriteMesh(m.model(), mtlName, w)
}

// saveOBJ writes path plus, for textured meshes, a sibling .mtl and _albedo.png.
func saveOBJ(path string, m *Mesh) error {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mtlName := ""
	if m.Texture != nil {
		mtlName = base + ".mtl"
		texName := base + "_albedo.png"
		dir := filepath.Dir(path)
		if err := imageio.SavePNG(filepath.Join(dir, texName), m.Texture); err != nil {
			return err
		}
		mtl := fmt.Sprintf("newmtl default\nKa 1 1 1\nKd 1 1 1\nKs 0 0 0\nillum 1\nmap_Kd %s\n", texName)
		if err := os.WriteFile(filepath.Join(dir, mtlName), []byte(mtl), 0o644); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteOBJ(f, m, mtlName); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
