package mesh

import (
	"math"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Sample is one bilinear texture lookup with everything needed to
// differentiate it.
type Sample struct {
	Color [3]float64
	// Texels are the pixel indices (y*width+x) of the four taps and Weights
	// their bilinear weights.
	Texels  [4]int
	Weights [4]float64
	// DU and DV are the derivatives of Color with respect to u and v.
	DU, DV [3]float64
}

// Bilinear samples tex at uv with clamp-to-edge addressing. UV (0,0) is the
// bottom-left corner of the texture.
func Bilinear(tex *ir.Image, uv [2]float64) Sample {
	w, h := tex.Width, tex.Height
	tx := uv[0]*float64(w) - 0.5
	ty := (1-uv[1])*float64(h) - 0.5
	fx0, fy0 := math.Floor(tx), math.Floor(ty)
	fx, fy := tx-fx0, ty-fy0

	x0 := clampInt(int(fx0), 0, w-1)
	x1 := clampInt(int(fx0)+1, 0, w-1)
	y0 := clampInt(int(fy0), 0, h-1)
	y1 := clampInt(int(fy0)+1, 0, h-1)

	var s Sample
	s.Texels = [4]int{y0*w + x0, y0*w + x1, y1*w + x0, y1*w + x1}
	s.Weights = [4]float64{(1 - fx) * (1 - fy), fx * (1 - fy), (1 - fx) * fy, fx * fy}

	for ch := range 3 {
		c00 := float64(tex.Pix[3*s.Texels[0]+ch])
		c10 := float64(tex.Pix[3*s.Texels[1]+ch])
		c01 := float64(tex.Pix[3*s.Texels[2]+ch])
		c11 := float64(tex.Pix[3*s.Texels[3]+ch])
		s.Color[ch] = c00*s.Weights[0] + c10*s.Weights[1] + c01*s.Weights[2] + c11*s.Weights[3]
		s.DU[ch] = float64(w) * ((c10-c00)*(1-fy) + (c11-c01)*fy)
		s.DV[ch] = -float64(h) * ((c01-c00)*(1-fx) + (c11-c10)*fx)
	}
	return s
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
