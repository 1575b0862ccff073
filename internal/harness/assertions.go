package harness

import (
	"fmt"
)

// AssertionError is returned when a scenario assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  expected: %s\n  actual: %s",
		e.Type, e.Expected, e.Actual)
}

// evalAssertion evaluates one final-state assertion against a run result.
func evalAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertAttributeEquals:
		return assertAttributeEquals(result, a)
	case AssertRowCount:
		return assertRowCount(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertAttributeEquals checks one attribute of a reconciled instance.
func assertAttributeEquals(result *Result, a Assertion) error {
	inst, ok := result.instances[a.Record]
	if !ok {
		return &AssertionError{
			Type:     AssertAttributeEquals,
			Expected: fmt.Sprintf("record %s reconciled", a.Record),
			Actual:   "record never reconciled in this scenario",
		}
	}

	actual := inst.Get(a.Attr)
	if !looselyEqual(actual, a.Equals) {
		return &AssertionError{
			Type:     AssertAttributeEquals,
			Expected: fmt.Sprintf("%s.%s = %v", a.Record, a.Attr, a.Equals),
			Actual:   fmt.Sprintf("%v (%T)", actual, actual),
		}
	}
	return nil
}

// assertRowCount checks the number of persisted rows of a type.
func assertRowCount(result *Result, a Assertion) error {
	rows, ok := result.Tables[a.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("table %s present in snapshot", a.Table),
			Actual:   "no such table",
		}
	}
	if len(rows) != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	return nil
}

// looselyEqual compares a YAML-sourced expected value against an engine
// value. Numeric values compare by magnitude regardless of width; anything
// else compares by formatted value. Good enough for scenario assertions.
func looselyEqual(actual, expected any) bool {
	if af, aok := asFloat(actual); aok {
		if ef, eok := asFloat(expected); eok {
			return af == ef
		}
		return false
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
