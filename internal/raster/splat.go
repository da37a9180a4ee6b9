package raster

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
)

const (
	nearPlane   = 0.2
	tileSize    = 16
	alphaMin    = 1.0 / 255
	alphaMax    = 0.99
	transmitMin = 1e-4
	sigmaExtent = 3.0
	minSigmaPx  = 0.3
)

// Reference is a CPU splat rasterizer.
//
// Each Gaussian is drawn as an isotropic screen-space blob whose standard
// deviation is the mean of its three scales projected at its depth; colour
// uses the spherical-harmonic DC term only. Blobs are composited front to
// back per pixel. Rotations and higher-order SH coefficients therefore get
// zero gradient.
type Reference struct{}

var _ SplatRasterizer = Reference{}

type splat struct {
	idx     int
	view    r3.Vec
	u, v    float64
	sigmaW  float64
	sigma   float64
	opacity float64
	color   [3]float64
	clamped [3]bool
	x0, y0  int
	x1, y1  int
}

type contrib struct {
	k       int // index into frame.splats
	a, t, g float64
	capped  bool
}

type splatFrame struct {
	w, h   int
	splats []splat
	tiles  [][]int
	tilesX int
}

func (Reference) Render(_ context.Context, s *gaussian.Set, view View) (*SplatOutput, error) {
	cam := view.Camera
	if cam.Width <= 0 || cam.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", cam.Width, cam.Height)
	}
	f := project(s, view)

	out := &SplatOutput{
		Color:   ir.NewImage(cam.Width, cam.Height),
		Alpha:   ir.NewMask(cam.Width, cam.Height),
		Visible: make([]bool, s.Len()),
		cache:   f,
	}
	var buf []contrib
	for y := range cam.Height {
		for x := range cam.Width {
			var tFinal float64
			buf, tFinal = f.pixel(x, y, buf[:0])
			var c [3]float64
			for _, ct := range buf {
				sp := &f.splats[ct.k]
				out.Visible[sp.idx] = true
				for ch := range 3 {
					c[ch] += ct.t * ct.a * sp.color[ch]
				}
			}
			for ch := range 3 {
				c[ch] += tFinal * float64(view.Background[ch])
			}
			out.Color.Set(x, y, [3]float32{float32(c[0]), float32(c[1]), float32(c[2])})
			out.Alpha.Set(x, y, float32(1-tFinal))
		}
	}
	return out, nil
}

func (Reference) Backward(_ context.Context, s *gaussian.Set, view View, out *SplatOutput, dColor, dAlpha []float32, grad *SplatGrad) error {
	f, ok := out.cache.(*splatFrame)
	if !ok {
		return fmt.Errorf("output was not produced by the reference rasterizer")
	}
	cam := view.Camera
	npx := cam.Width * cam.Height
	if len(dColor) != 3*npx {
		return fmt.Errorf("color gradient has %d values, want %d", len(dColor), 3*npx)
	}
	if dAlpha != nil && len(dAlpha) != npx {
		return fmt.Errorf("alpha gradient has %d values, want %d", len(dAlpha), npx)
	}
	if len(grad.Opacities) != s.Len() || len(grad.Viewspace) != 2*s.Len() {
		return fmt.Errorf("gradient sized for %d gaussians, scene has %d", len(grad.Opacities), s.Len())
	}

	n := len(f.splats)
	dU := make([]float64, n)
	dV := make([]float64, n)
	dSigma := make([]float64, n)
	dLogit := make([]float64, n)
	dCol := make([][3]float64, n)

	var buf []contrib
	for y := range cam.Height {
		for x := range cam.Width {
			var tFinal float64
			buf, tFinal = f.pixel(x, y, buf[:0])
			if len(buf) == 0 {
				continue
			}
			p := y*cam.Width + x
			dc := [3]float64{float64(dColor[3*p]), float64(dColor[3*p+1]), float64(dColor[3*p+2])}
			var da float64
			if dAlpha != nil {
				da = float64(dAlpha[p])
			}

			var rest [3]float64
			for ch := range 3 {
				rest[ch] = tFinal * float64(view.Background[ch])
			}
			px, py := float64(x)+0.5, float64(y)+0.5
			for i := len(buf) - 1; i >= 0; i-- {
				ct := buf[i]
				sp := &f.splats[ct.k]

				dLda := da * tFinal / (1 - ct.a)
				for ch := range 3 {
					dCol[ct.k][ch] += dc[ch] * ct.t * ct.a
					dLda += dc[ch] * (ct.t*sp.color[ch] - rest[ch]/(1-ct.a))
					rest[ch] += ct.t * ct.a * sp.color[ch]
				}
				if ct.capped {
					continue
				}

				dLdg := dLda * sp.opacity
				dLogit[ct.k] += dLda * ct.g * sp.opacity * (1 - sp.opacity)
				s2 := sp.sigma * sp.sigma
				ex, ey := px-sp.u, py-sp.v
				dU[ct.k] += dLdg * ct.g * ex / s2
				dV[ct.k] += dLdg * ct.g * ey / s2
				dSigma[ct.k] += dLdg * ct.g * (ex*ex + ey*ey) / (s2 * sp.sigma)
			}
		}
	}

	for k := range f.splats {
		sp := &f.splats[k]
		i := sp.idx
		z := sp.view.Z
		focal := cam.Focal

		dview := r3.Vec{
			X: dU[k] * focal / z,
			Y: -dV[k] * focal / z,
			Z: -dU[k]*focal*sp.view.X/(z*z) + dV[k]*focal*sp.view.Y/(z*z) - dSigma[k]*focal*sp.sigmaW/(z*z),
		}
		dworld := cam.ViewDirToWorld(dview)
		grad.Positions[3*i] += dworld.X
		grad.Positions[3*i+1] += dworld.Y
		grad.Positions[3*i+2] += dworld.Z

		dSigmaW := dSigma[k] * focal / z
		for ax := range 3 {
			grad.Scales[3*i+ax] += dSigmaW * math.Exp(s.Scales[3*i+ax]) / 3
		}
		grad.Opacities[i] += dLogit[k]
		for ch := range 3 {
			if !sp.clamped[ch] {
				grad.FeaturesDC[3*i+ch] += dCol[k][ch] * gaussian.SHC0
			}
		}
		grad.Viewspace[2*i] += dU[k] * float64(cam.Width) / 2
		grad.Viewspace[2*i+1] += dV[k] * float64(cam.Height) / 2
	}
	return nil
}

// project culls and projects every Gaussian, sorts them front to back and
// bins them into screen tiles.
func project(s *gaussian.Set, view View) *splatFrame {
	cam := view.Camera
	f := &splatFrame{w: cam.Width, h: cam.Height}

	for i := range s.Len() {
		pv := cam.ToView(s.Position(i))
		if pv.Z < nearPlane {
			continue
		}
		sc := s.Scale(i)
		sigmaW := (sc[0] + sc[1] + sc[2]) / 3
		sigma := cam.Focal * sigmaW / pv.Z
		if sigma < minSigmaPx || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			continue
		}
		u, v := cam.Project(pv)
		r := sigmaExtent * sigma
		sp := splat{
			idx:     i,
			view:    pv,
			u:       u,
			v:       v,
			sigmaW:  sigmaW,
			sigma:   sigma,
			opacity: s.Opacity(i),
			x0:      max(0, int(math.Ceil(u-r-0.5))),
			y0:      max(0, int(math.Ceil(v-r-0.5))),
			x1:      min(cam.Width-1, int(math.Floor(u+r-0.5))),
			y1:      min(cam.Height-1, int(math.Floor(v+r-0.5))),
		}
		if sp.x0 > sp.x1 || sp.y0 > sp.y1 {
			continue
		}
		for ch := range 3 {
			c := gaussian.SHToRGB(s.FeaturesDC[3*i+ch])
			if c < 0 {
				c, sp.clamped[ch] = 0, true
			}
			sp.color[ch] = c
		}
		f.splats = append(f.splats, sp)
	}

	sort.SliceStable(f.splats, func(a, b int) bool {
		return f.splats[a].view.Z < f.splats[b].view.Z
	})

	f.tilesX = (cam.Width + tileSize - 1) / tileSize
	tilesY := (cam.Height + tileSize - 1) / tileSize
	f.tiles = make([][]int, f.tilesX*tilesY)
	for k, sp := range f.splats {
		for ty := sp.y0 / tileSize; ty <= sp.y1/tileSize; ty++ {
			for tx := sp.x0 / tileSize; tx <= sp.x1/tileSize; tx++ {
				f.tiles[ty*f.tilesX+tx] = append(f.tiles[ty*f.tilesX+tx], k)
			}
		}
	}
	return f
}

// pixel appends the contributions to pixel (x, y) in front-to-back order
// and returns the transmittance left after them.
func (f *splatFrame) pixel(x, y int, buf []contrib) ([]contrib, float64) {
	t := 1.0
	px, py := float64(x)+0.5, float64(y)+0.5
	for _, k := range f.tiles[(y/tileSize)*f.tilesX+x/tileSize] {
		sp := &f.splats[k]
		if x < sp.x0 || x > sp.x1 || y < sp.y0 || y > sp.y1 {
			continue
		}
		ex, ey := px-sp.u, py-sp.v
		g := math.Exp(-0.5 * (ex*ex + ey*ey) / (sp.sigma * sp.sigma))
		a := sp.opacity * g
		capped := false
		if a > alphaMax {
			a, capped = alphaMax, true
		}
		if a < alphaMin {
			continue
		}
		next := t * (1 - a)
		if next < transmitMin {
			break
		}
		buf = append(buf, contrib{k: k, a: a, t: t, g: g, capped: capped})
		t = next
	}
	return buf, t
}
