package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
)

// RunWithGolden executes a scenario and compares the resulting database
// snapshot against a golden file at testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Step expectation and assertion failures are reported on t; golden
// mismatch fails via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}

	for _, failure := range result.Failures {
		t.Error(failure)
	}

	snapshot, err := fixture.MarshalCanonical(result.snapshotMap())
	if err != nil {
		t.Fatalf("scenario %s: marshal snapshot: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)

	return result
}
