package ir

// Version constants for artifacts written by this module.
const (
	// FormatVersion is the version of the run/trace JSON layout.
	FormatVersion = "1"

	// Version is the orbitsplat release version.
	Version = "0.1.0"
)
