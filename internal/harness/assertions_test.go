package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooselyEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"int64 vs int", int64(1), 1, true},
		{"float vs int", 1.0, 1, true},
		{"differing numbers", int64(1), 2, false},
		{"number vs string", int64(1), "1", false},
		{"equal strings", "Core", "Core", true},
		{"differing strings", "Core", "Fringe", false},
		{"nil vs nil", nil, nil, true},
		{"bool vs bool", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looselyEqual(tt.actual, tt.expected))
		})
	}
}

func TestAssertionErrorMessage(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRowCount,
		Expected: "1 rows in Team",
		Actual:   "2 rows",
	}
	assert.Contains(t, err.Error(), "row_count")
	assert.Contains(t, err.Error(), "expected: 1 rows in Team")
	assert.Contains(t, err.Error(), "actual: 2 rows")
}
