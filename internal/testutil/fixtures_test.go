package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferences(t *testing.T) {
	ims, masks, poses := References(4, 8, [3]float32{1, 0.5, 0})
	require.Len(t, ims, 4)
	require.Len(t, masks, 4)
	require.Len(t, poses, 4)

	assert.Equal(t, float32(0.5), ims[2].Pix[1])
	assert.Equal(t, 270.0, poses[3].Azimuth)
	assert.Equal(t, 2.0, poses[0].Radius)
}

func TestDiscMask(t *testing.T) {
	m := DiscMask(8)
	assert.Equal(t, float32(0), m.Pix[0], "corner is outside")
	assert.Equal(t, float32(1), m.Pix[4*8+4], "centre is inside")
}

func TestNoisyImage_Deterministic(t *testing.T) {
	a, b := NoisyImage(4, 7), NoisyImage(4, 7)
	assert.Equal(t, a.Pix, b.Pix)
	assert.NotEqual(t, a.Pix, NoisyImage(4, 8).Pix)
}
