package workflow

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares the canonical trace of result against
// testdata/golden/{name}.golden. Paths under root are made relative.
//
// To regenerate golden files, run:
//
//	go test ./internal/workflow -update
func AssertGolden(t *testing.T, name string, result *Result, root string) {
	t.Helper()

	data, err := NewTrace(result, root).Canonical()
	if err != nil {
		t.Fatalf("canonical trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
