// Package loss implements the image and regularization losses of the scene
// optimizers together with their analytic gradients.
//
// Every function returns the weighted loss value and, when given a non-nil
// gradient buffer, adds the gradient of that weighted value into it, so
// terms compose by calling them one after another on the same buffer.
package loss

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/roach88/orbitsplat/internal/gaussian"
)

// MSE returns weight * mean((pred - target)^2).
func MSE(pred, target, grad []float32, weight float64) (float64, error) {
	if len(pred) != len(target) {
		return 0, fmt.Errorf("mse: prediction has %d values, target %d", len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, nil
	}
	n := float64(len(pred))
	var sum float64
	for i := range pred {
		d := float64(pred[i]) - float64(target[i])
		sum += d * d
		if grad != nil {
			grad[i] += float32(weight * 2 * d / n)
		}
	}
	return weight * sum / n, nil
}

// Offset returns weight * mean_i |p_i - a_i|^2 over points laid out x,y,z.
// It penalizes Gaussians drifting away from the positions they started at.
func Offset(positions, anchors, gradPos []float64, weight float64) float64 {
	n := len(positions) / 3
	if n == 0 || weight == 0 {
		return 0
	}
	d2 := make([]float64, n)
	for i := range n {
		for ax := range 3 {
			d := positions[3*i+ax] - anchors[3*i+ax]
			d2[i] += d * d
			if gradPos != nil {
				gradPos[3*i+ax] += weight * 2 * d / float64(n)
			}
		}
	}
	return weight * floats.Sum(d2) / float64(n)
}

// OffsetOpacity returns weight * mean_i sigmoid(o_i) * |p_i - a_i|^2, which
// penalizes displaced points more the more opaque they are.
func OffsetOpacity(positions, anchors, opacityLogits, gradPos, gradOpacity []float64, weight float64) float64 {
	n := len(opacityLogits)
	if n == 0 || weight == 0 {
		return 0
	}
	terms := make([]float64, n)
	for i := range n {
		alpha := gaussian.Sigmoid(opacityLogits[i])
		var d2 float64
		for ax := range 3 {
			d := positions[3*i+ax] - anchors[3*i+ax]
			d2 += d * d
			if gradPos != nil {
				gradPos[3*i+ax] += weight * alpha * 2 * d / float64(n)
			}
		}
		if gradOpacity != nil {
			gradOpacity[i] += weight * alpha * (1 - alpha) * d2 / float64(n)
		}
		terms[i] = alpha * d2
	}
	return weight * floats.Sum(terms) / float64(n)
}
