package gaussian

// Artifact is the frozen result of a splatting run. It owns a private copy
// of the scene; callers can read it but never change it.
type Artifact struct {
	set        *Set
	iterations int
}

// Freeze snapshots s into an Artifact after the given number of iterations.
func Freeze(s *Set, iterations int) *Artifact {
	return &Artifact{set: s.Clone(), iterations: iterations}
}

// Len returns the number of Gaussians.
func (a *Artifact) Len() int { return a.set.Len() }

// Iterations returns how many optimization steps produced the artifact.
func (a *Artifact) Iterations() int { return a.iterations }

// SHDegree returns the spherical-harmonic degree of the colour features.
func (a *Artifact) SHDegree() int { return a.set.SHDegree }

// Set returns a mutable copy of the scene, e.g. to seed another run.
func (a *Artifact) Set() *Set { return a.set.Clone() }

// SavePLY writes the scene to path; see WritePLY.
func (a *Artifact) SavePLY(path string) error {
	return SavePLY(path, a.set)
}
