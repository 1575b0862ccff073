// Package engine implements the entity-reconciliation core: given an
// identifier and a raw record, it resolves whether a matching persisted
// instance already exists, coerces raw values into typed attributes, and
// creates or updates the instance so that re-applying the same record is
// idempotent.
package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
)

// ValueFactory converts one raw text value into a typed value.
// Used for the injectable date and datetime parsers.
type ValueFactory func(raw string) (time.Time, error)

// Engine reconciles fixture records against a persistence backend.
//
// An Engine owns its instance cache and relationship-set cache exclusively:
// one loading pass uses one Engine with one backend session, and records
// must be reconciled in an order where referenced records come before
// records that reference them. Concurrent passes need separate Engine and
// session pairs; nothing here is shared-state safe.
type Engine struct {
	backend backend.Backend
	logger  *slog.Logger

	// instances memoizes what each identifier last resolved to within this
	// session. Entries are re-validated against backend liveness before
	// being trusted; the cache is never persisted.
	instances map[fixture.Identifier]*backend.Instance

	// relationships memoizes the relationship attribute set per type name.
	// Type schemas are immutable during a load, so entries never invalidate.
	relationships map[string]map[string]struct{}

	dateFactory     ValueFactory
	datetimeFactory ValueFactory
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithDateFactory overrides date parsing. The default parses ISO-8601
// dates ("2006-01-02").
func WithDateFactory(f ValueFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.dateFactory = f
		}
	}
}

// WithDatetimeFactory overrides datetime parsing. The default parses
// ISO-8601 datetimes, with or without offset.
func WithDatetimeFactory(f ValueFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.datetimeFactory = f
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine bound to one backend session.
func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:         b,
		logger:          slog.Default(),
		instances:       make(map[fixture.Identifier]*backend.Instance),
		relationships:   make(map[string]map[string]struct{}),
		dateFactory:     DefaultDateFactory,
		datetimeFactory: DefaultDatetimeFactory,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Reconcile creates or updates the instance named by id from the raw
// record, returning the instance and whether it was newly created.
//
// Repeated calls with the same identifier and semantically equal data are
// idempotent: the first call creates, later calls update the same instance
// in place. Updates overwrite exactly the attributes present in the
// record; attributes absent from the record are left untouched.
//
// A record referencing an identifier that has not been reconciled yet is
// handled leniently: the reference resolves to a keyless placeholder
// instance and the matcher conservatively creates rather than guessing,
// so sibling references never raise. Callers wanting exact matching must
// reconcile records in dependency order.
//
// The instance is staged with the backend but not committed.
func (e *Engine) Reconcile(id fixture.Identifier, rec fixture.Record) (*backend.Instance, bool, error) {
	ts, ok := e.backend.Schema(id.TypeName)
	if !ok {
		return nil, false, newUnknownTypeError(id.TypeName, id.Key)
	}

	data, err := e.coerce(id, ts, rec)
	if err != nil {
		return nil, false, err
	}

	inst, err := e.findExisting(id, ts, data)
	if err != nil {
		return nil, false, err
	}

	created := false
	if inst == nil {
		inst, err = e.backend.Construct(id.TypeName, data)
		if err != nil {
			return nil, false, err
		}
		created = true
	} else {
		for _, attr := range sortedKeys(data) {
			e.backend.SetAttribute(inst, attr, data[attr])
		}
	}

	e.backend.Stage(inst)
	e.instances[id] = inst

	e.logger.Debug("record reconciled",
		"type", id.TypeName,
		"key", id.Key,
		"created", created,
		"attrs", len(data),
	)

	return inst, created, nil
}

// Commit delegates to the backend's durability operation, flushing all
// staged instances. No retry logic; backend failures propagate verbatim.
func (e *Engine) Commit() error {
	return e.backend.Commit()
}

// DefaultDateFactory parses an ISO-8601 date string.
func DefaultDateFactory(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

// DefaultDatetimeFactory parses an ISO-8601 datetime string, accepting
// RFC 3339 as well as offset-less and space-separated forms.
func DefaultDatetimeFactory(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
