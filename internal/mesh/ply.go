package mesh

import (
	"io"
	"os"

	"github.com/EliCDavis/polyform/formats/ply"
)

// ReadPLY decodes a PLY mesh: vertex positions with optional normals and
// UVs, and a face element of vertex_indices lists.
func ReadPLY(r io.Reader) (*Mesh, error) {
	pm, err := ply.ReadMesh(r)
	if err != nil {
		return nil, err
	}
	return fromModel(*pm)
}

// WritePLY encodes m as binary little-endian PLY. Textures are not stored.
func WritePLY(w io.Writer, m *Mesh) error {
	return ply.Write(w, m.model(), ply.BinaryLittleEndian)
}

func savePLY(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePLY(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
