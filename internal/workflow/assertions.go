package workflow

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/orbitsplat/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Steps    []StepResult
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSteps:\n")
	for i, s := range e.Steps {
		fmt.Fprintf(&buf, "  [%d] %s %s %s", i+1, s.Step, s.Node, s.Status)
		if s.ErrorCode != "" {
			fmt.Fprintf(&buf, " (%s)", s.ErrorCode)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// evaluate checks every assertion and returns the failures in order.
func evaluate(assertions []Assertion, r *Result) []error {
	var failures []error
	for _, a := range assertions {
		if err := check(a, r); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func check(a Assertion, r *Result) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Steps: r.Steps}
	}

	if a.Type == AssertStepOrder {
		return checkOrder(a, r, fail)
	}

	s, ok := r.Step(a.Step)
	if !ok {
		return fail(fmt.Sprintf("step %s in results", a.Step), "not found")
	}

	switch a.Type {
	case AssertStepSucceeded:
		if s.Status != StatusSucceeded {
			return fail(fmt.Sprintf("step %s succeeded", a.Step), describeStatus(s))
		}
	case AssertStepSkipped:
		if s.Status != StatusSkipped {
			return fail(fmt.Sprintf("step %s skipped", a.Step), describeStatus(s))
		}
	case AssertStepFailed:
		if s.Status != StatusFailed || (a.Code != "" && s.ErrorCode != a.Code) {
			want := fmt.Sprintf("step %s failed", a.Step)
			if a.Code != "" {
				want += " with " + a.Code
			}
			return fail(want, describeStatus(s))
		}
	case AssertOutputEquals:
		v, ok := s.Outputs[a.Output]
		if !ok {
			return fail(fmt.Sprintf("output %s.%s", a.Step, a.Output), "missing")
		}
		equal, err := canonicalEqual(summarize(v, ""), a.Value)
		if err != nil {
			return fail(fmt.Sprintf("comparable output %s.%s", a.Step, a.Output), err.Error())
		}
		if !equal {
			return fail(fmt.Sprintf("%s.%s = %v", a.Step, a.Output, a.Value),
				fmt.Sprint(summarize(v, "")))
		}
	case AssertOutputCount:
		v, ok := s.Outputs[a.Output]
		if !ok {
			return fail(fmt.Sprintf("output %s.%s", a.Step, a.Output), "missing")
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return fail(fmt.Sprintf("list output %s.%s", a.Step, a.Output), fmt.Sprintf("%T", v))
		}
		if rv.Len() != a.Count {
			return fail(fmt.Sprintf("%d items in %s.%s", a.Count, a.Step, a.Output),
				fmt.Sprintf("%d items", rv.Len()))
		}
	}
	return nil
}

// checkOrder verifies the listed steps executed in the given order.
// Intervening steps are allowed.
func checkOrder(a Assertion, r *Result, fail func(string, string) error) error {
	pos := make(map[string]int, len(r.Steps))
	for i, s := range r.Steps {
		if s.Status != StatusSkipped {
			pos[s.Step] = i + 1
		}
	}
	for _, id := range a.Steps {
		if pos[id] == 0 {
			return fail(fmt.Sprintf("steps executed in order: %v", a.Steps), "step not executed: "+id)
		}
	}
	for i := 1; i < len(a.Steps); i++ {
		prev, cur := a.Steps[i-1], a.Steps[i]
		if pos[prev] >= pos[cur] {
			return fail(fmt.Sprintf("steps executed in order: %v", a.Steps),
				fmt.Sprintf("%s (pos %d) should be before %s (pos %d)", prev, pos[prev], cur, pos[cur]))
		}
	}
	return nil
}

func describeStatus(s StepResult) string {
	if s.ErrorCode != "" {
		return s.Status + " with " + s.ErrorCode
	}
	return s.Status
}

// canonicalEqual compares values by their canonical JSON, so 2 and 2.0 match.
func canonicalEqual(actual, expected any) (bool, error) {
	a, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false, err
	}
	e, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, e), nil
}
