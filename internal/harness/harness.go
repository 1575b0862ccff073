package harness

import (
	"fmt"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/engine"
	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
	"github.com/elementhuman/py-yaml-fixtures/internal/sqlite"
)

// Result holds the outcome of one scenario run.
type Result struct {
	ScenarioName string

	// Passed is true when every step expectation and assertion held.
	Passed bool

	// Failures lists expectation and assertion failures. Infrastructure
	// errors (schema compilation, reconcile errors) abort the run instead.
	Failures []error

	// Tables holds the persisted rows per type after the final commit.
	Tables map[string][]map[string]any

	// instances maps "Type:key" to the reconciled handle, for
	// attribute assertions.
	instances map[string]*backend.Instance
}

// Run executes a scenario against a fresh in-memory database.
//
// Each pass reconciles its steps in order and commits; fixed instance
// tokens keep handle identity deterministic for golden comparison.
func Run(scenario *Scenario) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	registry, err := schema.CompileString(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}

	sess, err := sqlite.Open(":memory:", registry,
		sqlite.WithTokenGenerator(sqlite.NewFixedGenerator("inst")))
	if err != nil {
		return nil, fmt.Errorf("open in-memory session: %w", err)
	}
	defer sess.Close()

	eng := engine.New(sess)

	result := &Result{
		ScenarioName: scenario.Name,
		instances:    make(map[string]*backend.Instance),
	}

	for pi, pass := range scenario.Passes {
		for si, step := range pass.Steps {
			id, err := fixture.ParseIdentifier(step.Record)
			if err != nil {
				return nil, fmt.Errorf("pass %d step %d: %w", pi, si, err)
			}
			rec, err := step.record()
			if err != nil {
				return nil, fmt.Errorf("pass %d step %d: %w", pi, si, err)
			}

			inst, created, err := eng.Reconcile(id, rec)
			if err != nil {
				return nil, fmt.Errorf("pass %d step %d: reconcile %s: %w", pi, si, id, err)
			}
			result.instances[id.String()] = inst

			if step.Expect != nil && step.Expect.Created != nil && *step.Expect.Created != created {
				result.Failures = append(result.Failures, &AssertionError{
					Type:     "step_created",
					Expected: fmt.Sprintf("%s created=%v (pass %d step %d)", id, *step.Expect.Created, pi, si),
					Actual:   fmt.Sprintf("created=%v", created),
				})
			}
		}

		if err := eng.Commit(); err != nil {
			return nil, fmt.Errorf("pass %d: commit: %w", pi, err)
		}
	}

	result.Tables = make(map[string][]map[string]any)
	for _, typeName := range registry.TypeNames() {
		rows, err := sess.Rows(typeName)
		if err != nil {
			return nil, err
		}
		result.Tables[typeName] = rows
	}

	for _, assertion := range scenario.Assertions {
		if err := evalAssertion(result, assertion); err != nil {
			result.Failures = append(result.Failures, err)
		}
	}

	result.Passed = len(result.Failures) == 0
	return result, nil
}

// snapshotMap renders the result as a plain map for canonical JSON.
func (r *Result) snapshotMap() map[string]any {
	tables := make(map[string]any, len(r.Tables))
	for typeName, rows := range r.Tables {
		rowList := make([]any, len(rows))
		for i, row := range rows {
			rowList[i] = row
		}
		tables[typeName] = rowList
	}
	return map[string]any{
		"scenario": r.ScenarioName,
		"tables":   tables,
	}
}
