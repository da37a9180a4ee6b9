package mesh

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
)

// loadGLB reads every triangle primitive of every mesh in a glTF or GLB
// file into one mesh. Node transforms are not applied. The base colour
// texture of the first textured primitive becomes the mesh texture.
// glTF puts V=0 at the top of the image, so V is flipped on the way in.
func loadGLB(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	out := &Mesh{}
	withNormals, withUVs := true, true
	for _, gm := range doc.Meshes {
		for _, prim := range gm.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				continue
			}
			posIdx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
			if err != nil {
				return nil, fmt.Errorf("read positions: %w", err)
			}
			base := uint32(out.VertexCount())
			for _, p := range positions {
				out.Positions = append(out.Positions, float64(p[0]), float64(p[1]), float64(p[2]))
			}

			if nIdx, ok := prim.Attributes[gltf.NORMAL]; ok && withNormals {
				normals, err := modeler.ReadNormal(doc, doc.Accessors[nIdx], nil)
				if err != nil {
					return nil, fmt.Errorf("read normals: %w", err)
				}
				for _, n := range normals {
					out.Normals = append(out.Normals, float64(n[0]), float64(n[1]), float64(n[2]))
				}
			} else {
				withNormals = false
			}

			if tIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok && withUVs {
				uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[tIdx], nil)
				if err != nil {
					return nil, fmt.Errorf("read texcoords: %w", err)
				}
				for _, uv := range uvs {
					out.UVs = append(out.UVs, float64(uv[0]), 1-float64(uv[1]))
				}
			} else {
				withUVs = false
			}

			if prim.Indices != nil {
				indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
				if err != nil {
					return nil, fmt.Errorf("read indices: %w", err)
				}
				for _, i := range indices {
					out.Faces = append(out.Faces, base+i)
				}
			} else {
				for i := range uint32(len(positions)) {
					out.Faces = append(out.Faces, base+i)
				}
			}

			if out.Texture == nil && prim.Material != nil {
				tex, err := baseColorTexture(doc, *prim.Material, filepath.Dir(path))
				if err != nil {
					return nil, err
				}
				out.Texture = tex
			}
		}
	}
	if !withNormals {
		out.Normals = nil
	}
	if !withUVs {
		out.UVs = nil
	}
	return out, nil
}

func baseColorTexture(doc *gltf.Document, material uint32, dir string) (*ir.Image, error) {
	if int(material) >= len(doc.Materials) {
		return nil, nil
	}
	pbr := doc.Materials[material].PBRMetallicRoughness
	if pbr == nil || pbr.BaseColorTexture == nil {
		return nil, nil
	}
	tex := doc.Textures[pbr.BaseColorTexture.Index]
	if tex.Source == nil {
		return nil, nil
	}
	img := doc.Images[*tex.Source]

	var data []byte
	switch {
	case img.BufferView != nil:
		bv := doc.BufferViews[*img.BufferView]
		buf := doc.Buffers[bv.Buffer].Data
		data = buf[bv.ByteOffset : bv.ByteOffset+bv.ByteLength]
	case img.IsEmbeddedResource():
		var err error
		if data, err = img.MarshalData(); err != nil {
			return nil, fmt.Errorf("decode embedded image: %w", err)
		}
	case img.URI != "":
		return imageio.LoadImage(filepath.Join(dir, img.URI))
	default:
		return nil, nil
	}
	decoded, err := imageio.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode gltf image: %w", err)
	}
	return imageio.FromImage(decoded), nil
}

// saveGLB writes m as a single-primitive binary glTF, embedding the texture
// as PNG.
func saveGLB(path string, m *Mesh) error {
	doc := gltf.NewDocument()
	doc.Asset.Generator = "orbitsplat"

	positions := make([][3]float32, m.VertexCount())
	for i := range positions {
		p := m.Positions[3*i : 3*i+3]
		positions[i] = [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	prim := &gltf.Primitive{
		Attributes: map[string]uint32{
			gltf.POSITION: modeler.WritePosition(doc, positions),
		},
		Indices: gltf.Index(modeler.WriteIndices(doc, append([]uint32(nil), m.Faces...))),
	}

	if len(m.Normals) == len(m.Positions) && len(m.Normals) > 0 {
		normals := make([][3]float32, m.VertexCount())
		for i := range normals {
			n := m.Normals[3*i : 3*i+3]
			normals[i] = [3]float32{float32(n[0]), float32(n[1]), float32(n[2])}
		}
		prim.Attributes[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
	}
	if len(m.UVs) == 2*m.VertexCount() && len(m.UVs) > 0 {
		uvs := make([][2]float32, m.VertexCount())
		for i := range uvs {
			uvs[i] = [2]float32{float32(m.UVs[2*i]), float32(1 - m.UVs[2*i+1])}
		}
		prim.Attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uvs)
	}

	pbr := &gltf.PBRMetallicRoughness{
		BaseColorFactor: &[4]float32{1, 1, 1, 1},
		MetallicFactor:  gltf.Float(0),
		RoughnessFactor: gltf.Float(1),
	}
	if m.Texture != nil {
		var buf bytes.Buffer
		if err := imageio.EncodePNG(&buf, m.Texture); err != nil {
			return err
		}
		img, err := modeler.WriteImage(doc, "albedo", "image/png", &buf)
		if err != nil {
			return fmt.Errorf("embed texture: %w", err)
		}
		doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(img)})
		pbr.BaseColorTexture = &gltf.TextureInfo{Index: uint32(len(doc.Textures) - 1)}
	}
	doc.Materials = []*gltf.Material{{PBRMetallicRoughness: pbr, AlphaMode: gltf.AlphaOpaque}}
	prim.Material = gltf.Index(0)

	doc.Meshes = []*gltf.Mesh{{Name: "mesh", Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(0))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return gltf.SaveBinary(doc, path)
}
