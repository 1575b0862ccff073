// Package harness provides a conformance testing framework for the
// reconciliation engine. Scenarios declare a type schema, one or more
// reconcile passes (ordered records with expected created/updated
// outcomes), and final-state assertions; results snapshot to golden files
// for deterministic comparison.
//
// The harness plays the role of the external loading driver: it feeds the
// engine a stream of (Identifier, Record) pairs in scenario order. It is
// test tooling, not a fixture-file product surface.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Schema is the inline CUE type schema for the scenario.
	Schema string `yaml:"schema"`

	// Passes are executed in order, each against the same session.
	// A commit runs after every pass, so later passes exercise matching
	// against already-persisted rows.
	Passes []Pass `yaml:"passes"`

	// Assertions validate the final state after all passes.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Pass is one sequence of reconcile steps followed by a commit.
type Pass struct {
	Steps []Step `yaml:"steps"`
}

// Step reconciles one record.
type Step struct {
	// Record is the identifier in "Type:key" form.
	Record string `yaml:"record"`

	// Attrs contains raw scalar attribute values.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Refs contains relationship values: "Type:key" strings or lists
	// of them. They merge with Attrs into one record.
	Refs map[string]any `yaml:"refs,omitempty"`

	// Expect optionally validates the reconcile outcome.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected reconcile outcome for a step.
type StepExpect struct {
	// Created asserts whether the step created a new instance (true)
	// or updated an existing one (false).
	Created *bool `yaml:"created,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "attribute_equals": check one attribute of a reconciled record
	// - "row_count": check the number of persisted rows of a type
	Type string `yaml:"type"`

	// Record is the "Type:key" identifier (used by attribute_equals).
	Record string `yaml:"record,omitempty"`

	// Attr is the attribute name (used by attribute_equals).
	Attr string `yaml:"attr,omitempty"`

	// Equals is the expected value (used by attribute_equals).
	Equals any `yaml:"equals,omitempty"`

	// Table is the type name (used by row_count).
	Table string `yaml:"table,omitempty"`

	// Count is the expected row count (used by row_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertAttributeEquals = "attribute_equals"
	AssertRowCount        = "row_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected to catch typos, and required fields are validated.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Validate checks scenario structural requirements.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("scenario %s: schema is required", s.Name)
	}
	if len(s.Passes) == 0 {
		return fmt.Errorf("scenario %s: at least one pass is required", s.Name)
	}
	for pi, pass := range s.Passes {
		for si, step := range pass.Steps {
			if _, err := fixture.ParseIdentifier(step.Record); err != nil {
				return fmt.Errorf("scenario %s: pass %d step %d: %w", s.Name, pi, si, err)
			}
		}
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertAttributeEquals:
			if a.Record == "" || a.Attr == "" {
				return fmt.Errorf("scenario %s: assertion %d: attribute_equals needs record and attr", s.Name, i)
			}
		case AssertRowCount:
			if a.Table == "" {
				return fmt.Errorf("scenario %s: assertion %d: row_count needs table", s.Name, i)
			}
		default:
			return fmt.Errorf("scenario %s: assertion %d: unknown type %q", s.Name, i, a.Type)
		}
	}
	return nil
}

// record merges a step's attrs and refs into one raw record.
func (step Step) record() (fixture.Record, error) {
	rec := make(fixture.Record, len(step.Attrs)+len(step.Refs))
	for k, v := range step.Attrs {
		rec[k] = v
	}
	for k, v := range step.Refs {
		ref, err := parseRefValue(v)
		if err != nil {
			return nil, fmt.Errorf("ref %q: %w", k, err)
		}
		rec[k] = ref
	}
	return rec, nil
}

// parseRefValue converts a scenario ref value ("Type:key" or a list of
// them) into identifier values.
func parseRefValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return fixture.ParseIdentifier(val)
	case []any:
		refs := make([]fixture.Identifier, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: want \"Type:key\" string, got %T", i, elem)
			}
			id, err := fixture.ParseIdentifier(s)
			if err != nil {
				return nil, err
			}
			refs[i] = id
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("want \"Type:key\" string or list, got %T", v)
	}
}
