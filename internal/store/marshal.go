package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/orbitsplat/internal/ir"
)

// timeLayout is used for every stored timestamp.
const timeLayout = time.RFC3339Nano

// marshalParams converts a parameter map to canonical JSON TEXT and its hash.
func marshalParams(params map[string]any) (string, string, error) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := ir.MarshalCanonical(params)
	if err != nil {
		return "", "", fmt.Errorf("marshal params: %w", err)
	}
	hash, err := ir.ParamsHash(params)
	if err != nil {
		return "", "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), hash, nil
}

// unmarshalParams parses stored parameters. Numbers come back as float64.
func unmarshalParams(data string) (map[string]any, error) {
	params := map[string]any{}
	if data == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
