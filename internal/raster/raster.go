// Package raster defines the differentiable rasterizers the scene
// optimizers render through and ships CPU reference implementations.
//
// A rasterizer renders a scene from one View and, given the gradient of a
// loss with respect to the rendered pixels, accumulates the gradient with
// respect to the scene parameters. Accelerated implementations plug in
// behind the same interfaces.
package raster

import (
	"context"

	"github.com/roach88/orbitsplat/internal/camera"
	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
)

// View is one camera plus the colour shown where nothing is rendered.
type View struct {
	Camera     camera.Camera
	Background [3]float32
}

// SplatOutput is a rendered Gaussian view.
type SplatOutput struct {
	Color *ir.Image
	Alpha *ir.Mask
	// Visible marks Gaussians that contributed to at least one pixel.
	Visible []bool

	cache any
}

// SplatGrad mirrors the parameter layout of a gaussian.Set.
type SplatGrad struct {
	Positions    []float64
	FeaturesDC   []float64
	FeaturesRest []float64
	Opacities    []float64
	Scales       []float64
	Rotations    []float64
	// Viewspace is the gradient with respect to each projected center in
	// normalized device coordinates, two values per Gaussian. Density
	// control selects points by its norm.
	Viewspace []float64
}

// NewSplatGrad allocates a zero gradient shaped like s.
func NewSplatGrad(s *gaussian.Set) *SplatGrad {
	return &SplatGrad{
		Positions:    make([]float64, len(s.Positions)),
		FeaturesDC:   make([]float64, len(s.FeaturesDC)),
		FeaturesRest: make([]float64, len(s.FeaturesRest)),
		Opacities:    make([]float64, len(s.Opacities)),
		Scales:       make([]float64, len(s.Scales)),
		Rotations:    make([]float64, len(s.Rotations)),
		Viewspace:    make([]float64, 2*s.Len()),
	}
}

// Group returns the gradient slice for a gaussian parameter group name.
func (g *SplatGrad) Group(name string) []float64 {
	switch name {
	case gaussian.GroupXYZ:
		return g.Positions
	case gaussian.GroupDC:
		return g.FeaturesDC
	case gaussian.GroupRest:
		return g.FeaturesRest
	case gaussian.GroupOpacity:
		return g.Opacities
	case gaussian.GroupScaling:
		return g.Scales
	case gaussian.GroupRotation:
		return g.Rotations
	}
	return nil
}

// SplatRasterizer renders Gaussian scenes.
type SplatRasterizer interface {
	Render(ctx context.Context, s *gaussian.Set, view View) (*SplatOutput, error)
	// Backward adds the gradient of a loss into grad, given the loss
	// gradient with respect to out.Color (dColor) and out.Alpha (dAlpha,
	// may be nil).
	Backward(ctx context.Context, s *gaussian.Set, view View, out *SplatOutput, dColor, dAlpha []float32, grad *SplatGrad) error
}

// MeshOutput is a rendered mesh view.
type MeshOutput struct {
	Color *ir.Image
	Alpha *ir.Mask

	cache any
}

// MeshGrad holds gradients for a texture and the mesh vertex positions.
type MeshGrad struct {
	Texture   []float64
	Positions []float64
}

// NewMeshGrad allocates a zero gradient for m textured with tex.
func NewMeshGrad(m *mesh.Mesh, tex *ir.Image) *MeshGrad {
	return &MeshGrad{
		Texture:   make([]float64, len(tex.Pix)),
		Positions: make([]float64, len(m.Positions)),
	}
}

// MeshRasterizer renders textured triangle meshes.
type MeshRasterizer interface {
	Render(ctx context.Context, m *mesh.Mesh, tex *ir.Image, view View) (*MeshOutput, error)
	Backward(ctx context.Context, m *mesh.Mesh, tex *ir.Image, view View, out *MeshOutput, dColor []float32, grad *MeshGrad) error
}
