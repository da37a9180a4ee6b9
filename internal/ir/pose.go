package ir

import "fmt"

// CameraPose places a camera on an orbit around Center.
// Angles are in degrees: elevation in [-90, 90], azimuth in [0, 360).
type CameraPose struct {
	Radius    float64    `json:"radius"`
	Elevation float64    `json:"elevation"`
	Azimuth   float64    `json:"azimuth"`
	Center    [3]float64 `json:"center"`
}

// String renders the pose as "(radius, elevation, azimuth, cx, cy, cz)".
func (p CameraPose) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g, %g, %g)",
		p.Radius, p.Elevation, p.Azimuth, p.Center[0], p.Center[1], p.Center[2])
}

// PoseSlice is the set of poses generated by one directive for the inclusive
// image range [Start, End]. len(Poses) == End-Start+1.
type PoseSlice struct {
	Start int          `json:"start"`
	End   int          `json:"end"`
	Poses []CameraPose `json:"poses"`
}

// Len returns the number of images the slice covers.
func (s PoseSlice) Len() int {
	return s.End - s.Start + 1
}
