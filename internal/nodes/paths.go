package nodes

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/ncruces/go-strftime"
)

// Dirs are the roots relative paths resolve against.
type Dirs struct {
	Input  string
	Output string
}

// ResolveInput joins relative paths onto the input directory.
func (d Dirs) ResolveInput(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.Input, path)
}

// ResolveOutput expands time templates in path and joins relative paths
// onto the output directory.
func (d Dirs) ResolveOutput(path string, now time.Time) string {
	path = ExpandTime(path, now)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.Output, path)
}

var timeTemplate = regexp.MustCompile(`\[time\(([^)]*)\)\]`)

// ExpandTime replaces every [time(FORMAT)] in s with t formatted by the
// strftime FORMAT.
func ExpandTime(s string, t time.Time) string {
	return timeTemplate.ReplaceAllStringFunc(s, func(m string) string {
		format := timeTemplate.FindStringSubmatch(m)[1]
		return strftime.Format(format, t)
	})
}
