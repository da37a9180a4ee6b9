package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/roach88/orbitsplat/internal/ir"
)

// Per-scale exponents of multi-scale SSIM, finest first.
var msssimWeights = []float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

const (
	// Gaussian window, shrunk to the plane at coarse scales.
	ssimWindow = 11
	ssimSigma  = 1.5
	// Stabilizers for a data range of 1.
	ssimC1 = 0.01 * 0.01
	ssimC2 = 0.03 * 0.03
	// Coarser scales are skipped once the image gets smaller than this.
	minScaleSize = 4
	// Per-scale terms are clamped here before exponentiation.
	ssimFloor = 1e-6
)

// plane is an interleaved multi-channel raster in float64.
type plane struct {
	w, h, c int
	pix     []float64
}

func fromImage(im *ir.Image) plane {
	p := plane{w: im.Width, h: im.Height, c: 3, pix: make([]float64, len(im.Pix))}
	for i, v := range im.Pix {
		p.pix[i] = float64(v)
	}
	return p
}

func (p plane) at(x, y, ch int) float64 {
	return p.pix[(y*p.w+x)*p.c+ch]
}

// channel copies one channel out as a w*h map.
func (p plane) channel(ch int) []float64 {
	out := make([]float64, p.w*p.h)
	for i := range out {
		out[i] = p.pix[i*p.c+ch]
	}
	return out
}

// downsample halves both dimensions with 2x2 average pooling; an odd last
// row or column is dropped.
func (p plane) downsample() plane {
	out := plane{w: p.w / 2, h: p.h / 2, c: p.c}
	out.pix = make([]float64, out.w*out.h*out.c)
	for y := range out.h {
		for x := range out.w {
			for ch := range p.c {
				out.pix[(y*out.w+x)*out.c+ch] = 0.25 * (p.at(2*x, 2*y, ch) + p.at(2*x+1, 2*y, ch) +
					p.at(2*x, 2*y+1, ch) + p.at(2*x+1, 2*y+1, ch))
			}
		}
	}
	return out
}

// upsampleGrad routes the gradient of a downsampled plane back to the plane
// it was pooled from, adding into fine.
func upsampleGrad(coarse plane, coarseGrad []float64, fine plane, fineGrad []float64) {
	for y := range coarse.h {
		for x := range coarse.w {
			for ch := range coarse.c {
				g := 0.25 * coarseGrad[(y*coarse.w+x)*coarse.c+ch]
				for _, d := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
					fineGrad[((2*y+d[1])*fine.w+2*x+d[0])*fine.c+ch] += g
				}
			}
		}
	}
}

// gaussianKernel returns a normalized 1-D Gaussian of odd length size.
func gaussianKernel(size int) []float64 {
	k := make([]float64, size)
	c := float64(size / 2)
	for i := range k {
		d := float64(i) - c
		k[i] = math.Exp(-d * d / (2 * ssimSigma * ssimSigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// windowSize is the Gaussian window used on a w x h plane.
func windowSize(w, h int) int {
	n := min(ssimWindow, w, h)
	if n%2 == 0 {
		n--
	}
	return n
}

// filterValid convolves a w x h map with the separable kernel k, keeping
// only positions where the window fits.
func filterValid(src []float64, w, h int, k []float64) []float64 {
	n := len(k)
	ow, oh := w-n+1, h-n+1
	rows := make([]float64, ow*h)
	for y := range h {
		for x := range ow {
			rows[y*ow+x] = floats.Dot(k, src[y*w+x:y*w+x+n])
		}
	}
	out := make([]float64, ow*oh)
	for y := range oh {
		for x := range ow {
			var s float64
			for i, kv := range k {
				s += kv * rows[(y+i)*ow+x]
			}
			out[y*ow+x] = s
		}
	}
	return out
}

// filterTranspose is the adjoint of filterValid: it scatters a valid-sized
// map back over the w x h map it was filtered from.
func filterTranspose(src []float64, w, h int, k []float64) []float64 {
	n := len(k)
	ow, oh := w-n+1, h-n+1
	rows := make([]float64, ow*h)
	for y := range oh {
		for x := range ow {
			v := src[y*ow+x]
			for i, kv := range k {
				rows[(y+i)*ow+x] += kv * v
			}
		}
	}
	out := make([]float64, w*h)
	for y := range h {
		for x := range ow {
			floats.AddScaled(out[y*w+x:y*w+x+n], rows[y*ow+x], k)
		}
	}
	return out
}

// scaleTerm returns the mean over Gaussian windows and channels of the
// contrast-structure term cs, or of the full SSIM l*cs when full is set.
// With grad non-nil it adds scale * d(mean)/dx into grad.
func scaleTerm(x, y plane, full bool, grad []float64, scale float64) float64 {
	k := gaussianKernel(windowSize(x.w, x.h))
	ow, oh := x.w-len(k)+1, x.h-len(k)+1
	total := float64(ow * oh * x.c)

	var sum float64
	for ch := range x.c {
		xc, yc := x.channel(ch), y.channel(ch)
		xx := make([]float64, len(xc))
		yy := make([]float64, len(xc))
		xy := make([]float64, len(xc))
		floats.MulTo(xx, xc, xc)
		floats.MulTo(yy, yc, yc)
		floats.MulTo(xy, xc, yc)

		mx := filterValid(xc, x.w, x.h, k)
		my := filterValid(yc, x.w, x.h, k)
		exx := filterValid(xx, x.w, x.h, k)
		eyy := filterValid(yy, x.w, x.h, k)
		exy := filterValid(xy, x.w, x.h, k)

		// d(term)/dx_p = sum over windows q of g(p-q) * (alpha_q + beta_q*y_p + gamma_q*x_p).
		var alpha, beta, gamma []float64
		if grad != nil {
			alpha = make([]float64, len(mx))
			beta = make([]float64, len(mx))
			gamma = make([]float64, len(mx))
		}
		for q := range mx {
			a1 := 2*mx[q]*my[q] + ssimC1
			b1 := mx[q]*mx[q] + my[q]*my[q] + ssimC1
			a2 := 2*(exy[q]-mx[q]*my[q]) + ssimC2
			b2 := (exx[q] - mx[q]*mx[q]) + (eyy[q] - my[q]*my[q]) + ssimC2
			f := a2 / b2
			if full {
				f *= a1 / b1
			}
			sum += f

			if grad == nil {
				continue
			}
			al := f * (-2*my[q]/a2 + 2*mx[q]/b2)
			if full {
				al += f * (2*my[q]/a1 - 2*mx[q]/b1)
			}
			alpha[q] = al
			beta[q] = 2 * f / a2
			gamma[q] = -2 * f / b2
		}

		if grad == nil {
			continue
		}
		ta := filterTranspose(alpha, x.w, x.h, k)
		tb := filterTranspose(beta, x.w, x.h, k)
		tg := filterTranspose(gamma, x.w, x.h, k)
		for p := range ta {
			grad[p*x.c+ch] += scale / total * (ta[p] + tb[p]*yc[p] + tg[p]*xc[p])
		}
	}
	return sum / total
}

// MSSSIM returns the multi-scale structural similarity of two images: the
// contrast-structure terms of the finer scales and the full SSIM of the
// coarsest, each raised to its scale weight and multiplied. Identical
// images score 1.
func MSSSIM(x, y *ir.Image) (float64, error) {
	return msssim(x, y, nil)
}

// MSSSIMLoss returns weight * (1 - MSSSIM(pred, target)) and adds its
// gradient with respect to pred into grad when grad is non-nil.
func MSSSIMLoss(pred, target *ir.Image, grad []float32, weight float64) (float64, error) {
	if grad == nil {
		ms, err := msssim(pred, target, nil)
		return weight * (1 - ms), err
	}
	g := make([]float64, len(pred.Pix))
	ms, err := msssim(pred, target, g)
	if err != nil {
		return 0, err
	}
	for i, v := range g {
		grad[i] += float32(-weight * v)
	}
	return weight * (1 - ms), nil
}

func msssim(xi, yi *ir.Image, grad []float64) (float64, error) {
	if xi.Width != yi.Width || xi.Height != yi.Height {
		return 0, fmt.Errorf("ms-ssim: image sizes differ: %dx%d vs %dx%d",
			xi.Width, xi.Height, yi.Width, yi.Height)
	}
	if xi.Width == 0 || xi.Height == 0 {
		return 1, nil
	}

	xs := []plane{fromImage(xi)}
	ys := []plane{fromImage(yi)}
	for len(xs) < len(msssimWeights) {
		last := xs[len(xs)-1]
		if min(last.w, last.h)/2 < minScaleSize {
			break
		}
		xs = append(xs, last.downsample())
		ys = append(ys, ys[len(ys)-1].downsample())
	}

	// Exponents are renormalized when small images drop scales.
	weights := make([]float64, len(xs))
	copy(weights, msssimWeights)
	floats.Scale(1/floats.Sum(weights), weights)

	coarsest := len(xs) - 1
	terms := make([]float64, len(xs))
	ms := 1.0
	for s := range xs {
		terms[s] = scaleTerm(xs[s], ys[s], s == coarsest, nil, 0)
		ms *= math.Pow(max(terms[s], ssimFloor), weights[s])
	}
	if grad == nil {
		return ms, nil
	}

	grads := make([][]float64, len(xs))
	grads[0] = grad
	for s := 1; s < len(xs); s++ {
		grads[s] = make([]float64, len(xs[s].pix))
	}
	for s := range xs {
		if terms[s] <= ssimFloor {
			continue
		}
		scaleTerm(xs[s], ys[s], s == coarsest, grads[s], weights[s]*ms/terms[s])
	}
	for s := coarsest; s > 0; s-- {
		upsampleGrad(xs[s], grads[s], xs[s-1], grads[s-1])
	}
	return ms, nil
}
