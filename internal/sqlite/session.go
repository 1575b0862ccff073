// Package sqlite implements the persistence backend capability set on
// SQLite. A Session owns one database handle plus the in-memory write
// state of a loading session: the tracked instance set, the staged
// (pending) write list, and the rowid identity map that keeps query
// results pointing at already-materialized handles.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// Session is a SQLite-backed persistence session. It implements
// backend.Backend.
//
// Session is not safe for concurrent use: one loading pass owns one
// Session, per the engine's ownership model.
type Session struct {
	db       *sql.DB
	registry *schema.Registry
	tokens   TokenGenerator

	tracked    map[string]*backend.Instance          // token -> live handle
	pending    []*backend.Instance                   // staged writes, in staging order
	pendingSet map[string]bool                       // token -> staged
	rowids     map[string]int64                      // token -> rowid once flushed
	byRow      map[string]map[int64]*backend.Instance // type -> rowid -> handle

	noAutoflush int
}

// Option configures a Session.
type Option func(*Session)

// WithTokenGenerator overrides the instance token generator.
// Tests use NewFixedGenerator for deterministic handles.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Session) {
		if g != nil {
			s.tokens = g
		}
	}
}

// Open creates or opens a SQLite database at the given path and prepares
// one table per registered type.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Opening the same path twice is safe; table creation is idempotent.
func Open(path string, registry *schema.Registry, opts ...Option) (*Session, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Session{
		db:         db,
		registry:   registry,
		tokens:     UUIDv7Generator{},
		tracked:    make(map[string]*backend.Instance),
		pendingSet: make(map[string]bool),
		rowids:     make(map[string]int64),
		byRow:      make(map[string]map[int64]*backend.Instance),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection. Staged but uncommitted instances
// are discarded.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Schema returns the declared type schema for a type name.
func (s *Session) Schema(typeName string) (*schema.TypeSchema, bool) {
	return s.registry.Lookup(typeName)
}

// Construct builds a new, unsaved instance handle from typed data.
// The instance is not tracked until staged.
func (s *Session) Construct(typeName string, data map[string]any) (*backend.Instance, error) {
	if _, ok := s.registry.Lookup(typeName); !ok {
		return nil, fmt.Errorf("construct %s: unknown type", typeName)
	}
	attrs := make(map[string]any, len(data))
	for k, v := range data {
		attrs[k] = v
	}
	return backend.NewInstance(s.tokens.Generate(), typeName, attrs), nil
}

// SetAttribute assigns one attribute on an instance.
func (s *Session) SetAttribute(inst *backend.Instance, name string, value any) {
	inst.Set(name, value)
}

// GetAttribute reads one attribute from an instance.
func (s *Session) GetAttribute(inst *backend.Instance, name string) any {
	return inst.Get(name)
}

// Stage marks an instance for persistence on the next flush. Staging
// enters the instance into the tracked set; re-staging a flushed instance
// queues an update.
func (s *Session) Stage(inst *backend.Instance) {
	s.tracked[inst.Token()] = inst
	if !s.pendingSet[inst.Token()] {
		s.pending = append(s.pending, inst)
		s.pendingSet[inst.Token()] = true
	}
}

// IsTracked reports whether the session still considers the instance live.
func (s *Session) IsTracked(inst *backend.Instance) bool {
	return s.tracked[inst.Token()] == inst
}

// WithNoAutoflush runs fn with implicit flushing suppressed. Queries
// issued inside fn see only previously flushed rows. The suppression is
// released when fn returns, regardless of outcome.
func (s *Session) WithNoAutoflush(fn func() error) error {
	s.noAutoflush++
	defer func() { s.noAutoflush-- }()
	return fn()
}

// Commit flushes all staged instances to durable storage in one
// transaction. Constraint violations propagate verbatim.
func (s *Session) Commit() error {
	return s.flush()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
