// Package backend defines the persistence capability set the reconciliation
// engine consumes. The engine never touches storage directly: it constructs,
// queries, stages, and commits through this interface, and treats Instance
// as an opaque handle whose attributes it reads and writes only through the
// backend.
package backend

import (
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// Instance is an opaque handle to one materialized domain object. The token
// identifies the handle within a session; attribute storage is managed by
// the owning backend.
type Instance struct {
	token    string
	typeName string
	attrs    map[string]any
}

// NewInstance creates an instance handle. Intended for backend
// implementations; engine code obtains instances from Construct or Query.
func NewInstance(token, typeName string, attrs map[string]any) *Instance {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Instance{token: token, typeName: typeName, attrs: attrs}
}

// Token returns the session-scoped handle identity.
func (i *Instance) Token() string { return i.token }

// TypeName returns the fixture type this instance belongs to.
func (i *Instance) TypeName() string { return i.typeName }

// Get returns the named attribute value, or nil when unset.
func (i *Instance) Get(name string) any { return i.attrs[name] }

// Set assigns the named attribute value, overwriting any previous value.
func (i *Instance) Set(name string, value any) { i.attrs[name] = value }

// Attributes returns a copy of the instance's attribute map.
func (i *Instance) Attributes() map[string]any {
	out := make(map[string]any, len(i.attrs))
	for k, v := range i.attrs {
		out[k] = v
	}
	return out
}

// Backend is the capability set a persistence layer exposes to the engine.
//
// Query returns (nil, nil) when no row matches and *AmbiguousMatchError when
// more than one does. WithNoAutoflush runs fn with implicit flushing
// suppressed; the suppression is released when fn returns, regardless of
// outcome.
type Backend interface {
	// Construct builds a new, unsaved instance from typed data.
	Construct(typeName string, data map[string]any) (*Instance, error)

	// SetAttribute assigns one attribute on an instance.
	SetAttribute(inst *Instance, name string, value any)

	// GetAttribute reads one attribute from an instance.
	GetAttribute(inst *Instance, name string) any

	// Stage marks an instance for persistence on the next Commit.
	Stage(inst *Instance)

	// Query runs an equality filter expecting zero or one match.
	Query(typeName string, filter map[string]any) (*Instance, error)

	// IsTracked reports whether the backend still considers the instance
	// live within the current session.
	IsTracked(inst *Instance) bool

	// WithNoAutoflush runs fn without triggering implicit flushes.
	WithNoAutoflush(fn func() error) error

	// Commit durably persists all staged instances.
	Commit() error

	// Schema returns the declared type schema for a type name.
	Schema(typeName string) (*schema.TypeSchema, bool)
}
