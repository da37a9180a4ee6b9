// Package testutil provides deterministic fixtures shared by package tests.
package testutil

import (
	"io"
	"log/slog"
	"math/rand"

	"github.com/roach88/orbitsplat/internal/ir"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Rand returns a seeded source so fixtures are reproducible.
func Rand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// SolidImage returns a size×size image filled with c.
func SolidImage(size int, c [3]float32) *ir.Image {
	im := ir.NewImage(size, size)
	for p := range size * size {
		im.Pix[3*p], im.Pix[3*p+1], im.Pix[3*p+2] = c[0], c[1], c[2]
	}
	return im
}

// DiscMask returns a size×size mask that is 1 inside the inscribed disc.
func DiscMask(size int) *ir.Mask {
	m := ir.NewMask(size, size)
	r := float64(size) / 2
	for y := range size {
		for x := range size {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				m.Pix[y*size+x] = 1
			}
		}
	}
	return m
}

// NoisyImage returns a size×size image with uniform noise from seed.
func NoisyImage(size int, seed int64) *ir.Image {
	rng := Rand(seed)
	im := ir.NewImage(size, size)
	for i := range im.Pix {
		im.Pix[i] = rng.Float32()
	}
	return im
}

// OrbitPoses returns n poses evenly spaced in azimuth at the given radius.
func OrbitPoses(n int, radius float64) []ir.CameraPose {
	poses := make([]ir.CameraPose, n)
	for i := range poses {
		poses[i] = ir.CameraPose{Radius: radius, Azimuth: float64(i) * 360 / float64(n)}
	}
	return poses
}

// References returns n solid-colour images with disc masks and orbit poses.
func References(n, size int, c [3]float32) ([]*ir.Image, []*ir.Mask, []ir.CameraPose) {
	ims := make([]*ir.Image, n)
	masks := make([]*ir.Mask, n)
	for i := range n {
		ims[i] = SolidImage(size, c)
		masks[i] = DiscMask(size)
	}
	return ims, masks, OrbitPoses(n, 2)
}
