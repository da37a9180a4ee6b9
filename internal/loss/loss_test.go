package loss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbitsplat/internal/ir"
)

func randomImage(rng *rand.Rand, w, h int) *ir.Image {
	im := ir.NewImage(w, h)
	for i := range im.Pix {
		im.Pix[i] = float32(0.1 + 0.8*rng.Float64())
	}
	return im
}

func TestMSE(t *testing.T) {
	grad := make([]float32, 2)
	v, err := MSE([]float32{1, 0}, []float32{0, 0}, grad, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-12)
	assert.InDelta(t, 2, grad[0], 1e-6)
	assert.Equal(t, float32(0), grad[1])

	_, err = MSE([]float32{1}, nil, nil, 1)
	assert.Error(t, err)

	v, err = MSE(nil, nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestMSSSIM_Identical(t *testing.T) {
	im := randomImage(rand.New(rand.NewSource(1)), 32, 24)
	v, err := MSSSIM(im, im.Clone())
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-12)

	grad := make([]float32, len(im.Pix))
	l, err := MSSSIMLoss(im, im, grad, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0, l, 1e-12)
	for _, g := range grad {
		assert.InDelta(t, 0, g, 1e-6)
	}
}

func TestMSSSIM_DecreasesWithNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ref := randomImage(rng, 32, 32)
	noisy := ref.Clone()
	for i := range noisy.Pix {
		noisy.Pix[i] += float32(0.1 * rng.NormFloat64())
	}
	v, err := MSSSIM(ref, noisy)
	require.NoError(t, err)
	assert.Less(t, v, 1.0)
	assert.Greater(t, v, 0.0)
}

func TestMSSSIM_SizeMismatch(t *testing.T) {
	_, err := MSSSIM(ir.NewImage(4, 4), ir.NewImage(4, 5))
	assert.Error(t, err)
}

func TestMSSSIM_WeightedProductOfScales(t *testing.T) {
	// Flat images have no contrast, so every cs term is 1 and only the
	// luminance of the coarsest scale is left, raised to its exponent.
	x := ir.NewImage(32, 32)
	y := ir.NewImage(32, 32)
	for i := range x.Pix {
		x.Pix[i], y.Pix[i] = 0.6, 0.3
	}
	lum := (2*0.6*0.3 + ssimC1) / (0.6*0.6 + 0.3*0.3 + ssimC1)
	// 32, 16, 8 and 4 pixel scales.
	w := msssimWeights[3] / (msssimWeights[0] + msssimWeights[1] + msssimWeights[2] + msssimWeights[3])

	v, err := MSSSIM(x, y)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(lum, w), v, 1e-6)
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(11)
	require.Len(t, k, 11)
	assert.InDelta(t, 1, k[0]+k[1]+k[2]+k[3]+k[4]+k[5]+k[6]+k[7]+k[8]+k[9]+k[10], 1e-12)
	assert.InDelta(t, k[5]*math.Exp(-1/(2*1.5*1.5)), k[4], 1e-12)
	for i := range 5 {
		assert.Equal(t, k[i], k[10-i])
		assert.Less(t, k[i], k[i+1])
	}

	assert.Equal(t, 11, windowSize(64, 48))
	assert.Equal(t, 7, windowSize(8, 16))
	assert.Equal(t, 3, windowSize(4, 4))
}

func TestFilterTransposeIsAdjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const w, h = 13, 12
	k := gaussianKernel(5)
	src := make([]float64, w*h)
	for i := range src {
		src[i] = rng.Float64()
	}
	dst := make([]float64, (w-4)*(h-4))
	for i := range dst {
		dst[i] = rng.Float64()
	}

	// <F src, dst> == <src, F^T dst>
	var lhs, rhs float64
	for i, v := range filterValid(src, w, h, k) {
		lhs += v * dst[i]
	}
	for i, v := range filterTranspose(dst, w, h, k) {
		rhs += v * src[i]
	}
	assert.InDelta(t, lhs, rhs, 1e-9)
}

func TestMSSSIMLoss_GradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pred := randomImage(rng, 16, 16)
	// Correlated images keep every window's covariance well away from zero.
	target := pred.Clone()
	for i := range target.Pix {
		target.Pix[i] += float32(0.05 * rng.NormFloat64())
	}

	grad := make([]float32, len(pred.Pix))
	_, err := MSSSIMLoss(pred, target, grad, 1)
	require.NoError(t, err)

	for _, i := range []int{0, 5, 100, 383, 767} {
		orig := pred.Pix[i]
		pred.Pix[i] = orig + 1e-3
		hi := pred.Pix[i]
		up, err := MSSSIMLoss(pred, target, nil, 1)
		require.NoError(t, err)
		pred.Pix[i] = orig - 1e-3
		lo := pred.Pix[i]
		down, err := MSSSIMLoss(pred, target, nil, 1)
		require.NoError(t, err)
		pred.Pix[i] = orig

		numeric := (up - down) / (float64(hi) - float64(lo))
		assert.InDelta(t, numeric, float64(grad[i]), 1e-4+1e-2*math.Abs(numeric), "pixel %d", i)
	}
}

func TestOffset(t *testing.T) {
	pos := []float64{1, 0, 0, 0, 2, 0}
	anchor := make([]float64, 6)
	grad := make([]float64, 6)
	v := Offset(pos, anchor, grad, 3)
	assert.InDelta(t, 3*(1+4)/2.0, v, 1e-12)
	assert.InDelta(t, 3.0, grad[0], 1e-12)
	assert.InDelta(t, 6.0, grad[4], 1e-12)

	assert.Equal(t, 0.0, Offset(pos, anchor, nil, 0))
}

func TestOffsetOpacity(t *testing.T) {
	pos := []float64{2, 0, 0}
	anchor := []float64{0, 0, 0}
	logits := []float64{0}
	gp := make([]float64, 3)
	gop := make([]float64, 1)
	v := OffsetOpacity(pos, anchor, logits, gp, gop, 1)
	assert.InDelta(t, 0.5*4, v, 1e-12)
	assert.InDelta(t, 0.5*2*2, gp[0], 1e-12)
	assert.InDelta(t, 0.25*4, gop[0], 1e-12)
}
