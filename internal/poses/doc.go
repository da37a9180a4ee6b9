// Package poses turns the orbit-camera command language into per-image
// camera poses.
//
// The pipeline has two pure phases:
//
//  1. Parse: text → []ir.PoseSlice, one slice per valid directive
//  2. Compose: slices → one index-ordered []ir.CameraPose of length n
//
// A directive looks like
//
//	([0:30], 1.75, 0, 0, 360)
//
// meaning images 0..30 are viewed from radius 1.75 at elevation 0 while the
// azimuth sweeps from 0 towards 360 degrees.
//
// Composition is all-or-nothing: any gap or overlap between slices discards
// the whole sequence.
package poses
