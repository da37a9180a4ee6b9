// Package ir provides the shared data types for orbitsplat.
//
// This package contains type definitions and the error taxonomy only. All other
// internal packages import ir; ir imports nothing internal. This keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Pose sequences are ordered by reference-image index
//   - Raster buffers are row-major, values in [0, 1]
//   - All JSON tags use snake_case
package ir
