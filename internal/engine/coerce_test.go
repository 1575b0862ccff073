package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
)

func TestReconcileCoercesTemporalKinds(t *testing.T) {
	e, _ := newTestEngine(t)

	inst, _, err := e.Reconcile(ident("User", "alice"), fixture.Record{
		"email":     "alice@example.com",
		"joined":    "2024-01-15",
		"wake_at":   "06:30:00",
		"last_seen": "2024-01-15T12:30:00Z",
		"trial":     "2 days",
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), inst.Get("joined"))
	assert.Equal(t, time.Date(1, time.January, 1, 6, 30, 0, 0, time.UTC), inst.Get("wake_at"))
	assert.Equal(t, time.Date(2024, time.January, 15, 12, 30, 0, 0, time.UTC), inst.Get("last_seen"))
	assert.Equal(t, 48*time.Hour, inst.Get("trial"))
}

func TestReconcilePassThroughKinds(t *testing.T) {
	e, _ := newTestEngine(t)

	inst, _, err := e.Reconcile(ident("User", "alice"), fixture.Record{
		"email": "alice@example.com",
		"name":  nil,
		"ref":   "0190a6b2-0000-7000-8000-000000000000",
	})
	require.NoError(t, err)

	assert.Nil(t, inst.Get("name"))
	assert.Equal(t, "0190a6b2-0000-7000-8000-000000000000", inst.Get("ref"))
}

func TestReconcileAlreadyTypedValuesPassThrough(t *testing.T) {
	e, _ := newTestEngine(t)

	joined := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	inst, _, err := e.Reconcile(ident("User", "alice"), fixture.Record{
		"email":  "alice@example.com",
		"joined": joined,
		"trial":  90 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, joined, inst.Get("joined"))
	assert.Equal(t, 90*time.Minute, inst.Get("trial"))
}

func TestReconcileInvalidValue(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name string
		attr string
		rec  fixture.Record
	}{
		{"malformed date", "joined", fixture.Record{"joined": "not-a-date"}},
		{"malformed time", "wake_at", fixture.Record{"wake_at": "25:99:00"}},
		{"malformed duration", "trial", fixture.Record{"trial": "fortnight"}},
		{"non-text date", "joined", fixture.Record{"joined": 20240115}},
		{"non-reference relationship value", "team", fixture.Record{"team": "core"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Reconcile(ident("User", "alice"), tt.rec)
			require.Error(t, err)
			assert.True(t, IsInvalidValue(err))

			var re *ReconcileError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.attr, re.Attr)
		})
	}
}

func TestReconcileUndeclaredAttributePassesThrough(t *testing.T) {
	e, _ := newTestEngine(t)

	inst, _, err := e.Reconcile(ident("Team", "core"), fixture.Record{
		"name":  "Core",
		"motto": "ship it",
	})
	require.NoError(t, err)
	assert.Equal(t, "ship it", inst.Get("motto"))
}

func TestCustomDateFactory(t *testing.T) {
	s := openSession(t, t.TempDir()+"/test.db")
	e := New(s, WithDateFactory(func(raw string) (time.Time, error) {
		return time.Parse("02/01/2006", raw)
	}))

	inst, _, err := e.Reconcile(ident("User", "alice"), fixture.Record{
		"email":  "alice@example.com",
		"joined": "15/01/2024",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), inst.Get("joined"))
}

func TestDefaultDatetimeFactory(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2024-01-15T12:30:00Z", time.Date(2024, time.January, 15, 12, 30, 0, 0, time.UTC)},
		{"2024-01-15T12:30:00+01:00", time.Date(2024, time.January, 15, 12, 30, 0, 0, time.FixedZone("", 3600))},
		{"2024-01-15T12:30:00", time.Date(2024, time.January, 15, 12, 30, 0, 0, time.UTC)},
		{"2024-01-15 12:30:00", time.Date(2024, time.January, 15, 12, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := DefaultDatetimeFactory(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}

	_, err := DefaultDatetimeFactory("yesterday")
	require.Error(t, err)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		wantErr bool
	}{
		{raw: "06:30:15", want: time.Date(1, time.January, 1, 6, 30, 15, 0, time.UTC)},
		{raw: "06:30", want: time.Date(1, time.January, 1, 6, 30, 0, 0, time.UTC)},
		{raw: "13", want: time.Date(1, time.January, 1, 13, 0, 0, 0, time.UTC)},
		{raw: "00:00:00", want: time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{raw: "23:59:59", want: time.Date(1, time.January, 1, 23, 59, 59, 0, time.UTC)},
		{raw: "24:00:00", wantErr: true},
		{raw: "12:60:00", wantErr: true},
		{raw: "12:30:00:00", wantErr: true},
		{raw: "noon:30", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseClock(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "2 days", want: 48 * time.Hour},
		{raw: "1 day", want: 24 * time.Hour},
		{raw: "3 weeks", want: 3 * 7 * 24 * time.Hour},
		{raw: "1.5 hours", want: 90 * time.Minute},
		{raw: "30 minutes", want: 30 * time.Minute},
		{raw: "45 seconds", want: 45 * time.Second},
		{raw: "250 milliseconds", want: 250 * time.Millisecond},
		{raw: "10 microseconds", want: 10 * time.Microsecond},
		{raw: "2 Days", want: 48 * time.Hour},
		{raw: "days", wantErr: true},
		{raw: "2 fortnights", wantErr: true},
		{raw: "two days", wantErr: true},
		{raw: "2 days extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseDurationString(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
