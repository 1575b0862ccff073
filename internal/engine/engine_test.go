package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
	"github.com/elementhuman/py-yaml-fixtures/internal/sqlite"
)

const testSchemaCUE = `
types: {
	Team: {
		attributes: {
			id:   {kind: "int", primary_key: true}
			name: {kind: "text", unique: true}
		}
	}
	User: {
		attributes: {
			id:        {kind: "int", primary_key: true}
			email:     {kind: "text", unique: true}
			name:      {kind: "text"}
			joined:    {kind: "date"}
			wake_at:   {kind: "time"}
			last_seen: {kind: "datetime"}
			trial:     {kind: "duration"}
			ref:       {kind: "uuid"}
		}
		relationships: {
			team: {target: "Team"}
			tags: {target: "Tag", many: true}
		}
	}
	Tag: {
		attributes: {
			id:    {kind: "int", primary_key: true}
			label: {kind: "text"}
		}
	}
}
`

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry, err := schema.CompileString(testSchemaCUE)
	require.NoError(t, err)
	return registry
}

func openSession(t *testing.T, path string) *sqlite.Session {
	t.Helper()
	s, err := sqlite.Open(path, testRegistry(t),
		sqlite.WithTokenGenerator(sqlite.NewFixedGenerator("inst")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T) (*Engine, *sqlite.Session) {
	t.Helper()
	s := openSession(t, filepath.Join(t.TempDir(), "test.db"))
	return New(s), s
}

func ident(typeName, key string) fixture.Identifier {
	return fixture.Identifier{TypeName: typeName, Key: key}
}

func TestReconcileCreatesInstance(t *testing.T) {
	e, s := newTestEngine(t)

	inst, created, err := e.Reconcile(ident("Team", "core"), fixture.Record{"name": "Core"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Core", inst.Get("name"))
	assert.True(t, s.IsTracked(inst), "reconciled instances must be staged")

	require.NoError(t, e.Commit())
	rows, err := s.Rows("Team")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "Core", rows[0]["name"])
}

func TestReconcileIdempotent(t *testing.T) {
	e, s := newTestEngine(t)
	id := ident("Team", "core")
	rec := fixture.Record{"name": "Core"}

	first, created, err := e.Reconcile(id, rec)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := e.Reconcile(id, rec)
	require.NoError(t, err)
	assert.False(t, created, "re-applying the same record must not create")
	assert.Same(t, first, second)

	require.NoError(t, e.Commit())
	rows, err := s.Rows("Team")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcilePartialUpdate(t *testing.T) {
	e, s := newTestEngine(t)
	id := ident("User", "alice")

	_, created, err := e.Reconcile(id, fixture.Record{
		"email": "alice@example.com",
		"name":  "Alice",
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, e.Commit())

	// A later record carrying only part of the attributes overwrites
	// exactly those; the rest stay as persisted.
	inst, created, err := e.Reconcile(id, fixture.Record{"name": "Alice Liddell"})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, e.Commit())

	assert.Equal(t, "alice@example.com", inst.Get("email"))
	rows, err := s.Rows("User")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice Liddell", rows[0]["name"])
	assert.Equal(t, "alice@example.com", rows[0]["email"])
}

func TestReconcileUnknownType(t *testing.T) {
	e, _ := newTestEngine(t)

	_, _, err := e.Reconcile(ident("Ghost", "casper"), fixture.Record{})
	require.Error(t, err)
	assert.True(t, IsUnknownType(err))

	var re *ReconcileError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Ghost", re.TypeName)
	assert.Equal(t, "casper", re.Key)
}

// countingBackend wraps a backend and counts existence queries.
type countingBackend struct {
	backend.Backend
	queries int
}

func (c *countingBackend) Query(typeName string, filter map[string]any) (*backend.Instance, error) {
	c.queries++
	return c.Backend.Query(typeName, filter)
}

func TestReconcileCacheShortCircuitsQueries(t *testing.T) {
	s := openSession(t, filepath.Join(t.TempDir(), "test.db"))
	cb := &countingBackend{Backend: s}
	e := New(cb)

	id := ident("User", "alice")
	rec := fixture.Record{"email": "alice@example.com", "name": "Alice"}

	_, _, err := e.Reconcile(id, rec)
	require.NoError(t, err)
	queriesAfterFirst := cb.queries
	require.Positive(t, queriesAfterFirst, "the first reconcile must probe storage")

	_, created, err := e.Reconcile(id, rec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, queriesAfterFirst, cb.queries,
		"a live cached instance must resolve without touching storage")
}

func TestReconcileMatchesPersistedRowByUniqueKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	rec := fixture.Record{"email": "alice@example.com", "name": "Alice"}

	e1 := New(openSession(t, path))
	_, created, err := e1.Reconcile(ident("User", "alice"), rec)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, e1.Commit())

	// A fresh engine and session have an empty cache: the unique email
	// must still find the persisted row.
	s2 := openSession(t, path)
	e2 := New(s2)
	inst, created, err := e2.Reconcile(ident("User", "alice"), rec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(1), inst.Get("id"))
	require.NoError(t, e2.Commit())

	rows, err := s2.Rows("User")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcileUniqueKeyWinsOverDifferingAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	e1 := New(openSession(t, path))
	_, created, err := e1.Reconcile(ident("User", "alice"), fixture.Record{
		"email": "alice@example.com",
		"name":  "old",
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, e1.Commit())

	// The unique email alone decides the match: the differing name must
	// not keep the row from being found, and is overwritten on update.
	s2 := openSession(t, path)
	e2 := New(s2)
	_, created, err = e2.Reconcile(ident("User", "alice"), fixture.Record{
		"email": "alice@example.com",
		"name":  "new",
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, e2.Commit())

	rows, err := s2.Rows("User")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0]["name"])
}

func TestReconcileFallbackFilterMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	rec := fixture.Record{"label": "red"}

	e1 := New(openSession(t, path))
	_, created, err := e1.Reconcile(ident("Tag", "red"), rec)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, e1.Commit())

	// No key or unique attribute in the record: the full-attribute
	// fallback filter must still find the row.
	s2 := openSession(t, path)
	e2 := New(s2)
	_, created, err = e2.Reconcile(ident("Tag", "red"), rec)
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, e2.Commit())

	rows, err := s2.Rows("Tag")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcileForwardReference(t *testing.T) {
	e, s := newTestEngine(t)

	// The user arrives before the team it references. The reference
	// resolves to a placeholder instance and the user is created rather
	// than matched against anything.
	user, created, err := e.Reconcile(ident("User", "alice"), fixture.Record{
		"email": "alice@example.com",
		"team":  ident("Team", "core"),
	})
	require.NoError(t, err)
	assert.True(t, created)

	placeholder, ok := user.Get("team").(*backend.Instance)
	require.True(t, ok)
	assert.Equal(t, "Team", placeholder.TypeName())
	assert.Nil(t, placeholder.Get("name"))

	// The team's own record later updates the placeholder in place.
	team, created, err := e.Reconcile(ident("Team", "core"), fixture.Record{"name": "Core"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, placeholder, team)

	require.NoError(t, e.Commit())

	teams, err := s.Rows("Team")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "Core", teams[0]["name"])

	users, err := s.Rows("User")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, teams[0]["id"], users[0]["team"])
}

func TestReconcileReferenceList(t *testing.T) {
	e, s := newTestEngine(t)

	_, _, err := e.Reconcile(ident("Tag", "red"), fixture.Record{"label": "red"})
	require.NoError(t, err)

	user, created, err := e.Reconcile(ident("User", "alice"), fixture.Record{
		"email": "alice@example.com",
		"tags":  []any{ident("Tag", "red"), ident("Tag", "blue")},
	})
	require.NoError(t, err)
	assert.True(t, created)

	tags, ok := user.Get("tags").([]*backend.Instance)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, "red", tags[0].Get("label"))
	assert.Nil(t, tags[1].Get("label"), "unseen identifiers resolve to placeholders")

	require.NoError(t, e.Commit())
	users, err := s.Rows("User")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "[1,2]", users[0]["tags"])
}

func TestReconcileResolvedReferenceJoinsFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	e1 := New(openSession(t, path))
	_, _, err := e1.Reconcile(ident("Team", "core"), fixture.Record{"name": "Core"})
	require.NoError(t, err)
	_, _, err = e1.Reconcile(ident("User", "alice"), fixture.Record{
		"name": "Alice",
		"team": ident("Team", "core"),
	})
	require.NoError(t, err)
	require.NoError(t, e1.Commit())

	// Fresh engine, no unique attribute in the record: the reference now
	// carries a persisted key, so the fallback filter can use it.
	s2 := openSession(t, path)
	e2 := New(s2)
	_, _, err = e2.Reconcile(ident("Team", "core"), fixture.Record{"name": "Core"})
	require.NoError(t, err)
	_, created, err := e2.Reconcile(ident("User", "alice"), fixture.Record{
		"name": "Alice",
		"team": ident("Team", "core"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, e2.Commit())

	rows, err := s2.Rows("User")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCommitPropagatesBackendErrors(t *testing.T) {
	e, _ := newTestEngine(t)

	for _, key := range []string{"a", "b"} {
		_, _, err := e.Reconcile(ident("Team", key), fixture.Record{"name": "dupe"})
		require.NoError(t, err)
	}
	require.Error(t, e.Commit(), "unique violations surface unchanged")
}
