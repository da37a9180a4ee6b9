package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"float", 0.25, "0.25"},
		{"float32", float32(1.5), "1.5"},
		{"integral float", 3.0, "3"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []any{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"z": 1, "a": 2},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"a":2,"z":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
	assert.NotContains(t, string(result), `\u003c`)
	assert.NotContains(t, string(result), `\u0026`)
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	result, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(result))
}

func TestMarshalCanonicalNegativeZero(t *testing.T) {
	result, err := MarshalCanonical([]any{math.Copysign(0, -1), 0.0})
	require.NoError(t, err)
	assert.Equal(t, "[0,0]", string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"null", nil, "null is forbidden"},
		{"nan", math.NaN(), "non-finite"},
		{"inf", math.Inf(1), "non-finite"},
		{"nested nan", map[string]any{"loss": math.NaN()}, `object["loss"]`},
		{"nested null", []any{1, nil}, "array[1]"},
		{"unsupported", struct{}{}, "unsupported type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalCanonicalPoses(t *testing.T) {
	poses := []CameraPose{
		{Radius: 4, Elevation: 0, Azimuth: 90},
		{Radius: 4, Elevation: -15.5, Azimuth: 180, Center: [3]float64{0, 0.5, 0}},
	}

	result, err := MarshalCanonical(poses)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"azimuth":90,"center":[0,0,0],"elevation":0,"radius":4},`+
			`{"azimuth":180,"center":[0,0.5,0],"elevation":-15.5,"radius":4}]`,
		string(result))
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := map[string]any{
		"iterations": 1000,
		"lr":         0.0016,
		"name":       "scene",
		"views":      []any{"a.png", "b.png"},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
