// Package schema models the attribute metadata the reconciliation engine
// needs about each fixture type: which attributes are scalar (and their
// semantic kind, which drives coercion), which are relationship-valued,
// and which participate in primary-key or uniqueness constraints.
//
// Type schemas are assumed immutable for the duration of a load.
package schema

import (
	"fmt"
	"sort"
)

// Kind is the semantic coercion category of a scalar attribute.
type Kind string

const (
	KindText     Kind = "text"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindDate     Kind = "date"
	KindTime     Kind = "time"
	KindDatetime Kind = "datetime"
	KindDuration Kind = "duration"
	KindUUID     Kind = "uuid"
)

// validKinds guards CUE compilation; KindText is the default when a
// definition omits the kind.
var validKinds = map[Kind]bool{
	KindText:     true,
	KindInt:      true,
	KindFloat:    true,
	KindBool:     true,
	KindDate:     true,
	KindTime:     true,
	KindDatetime: true,
	KindDuration: true,
	KindUUID:     true,
}

// Attribute describes one scalar attribute of a type.
type Attribute struct {
	Name       string
	Kind       Kind
	PrimaryKey bool
	Unique     bool
}

// Relationship describes one relationship-valued attribute: a reference to
// one (to-one) or many (to-many) instances of the target type.
type Relationship struct {
	Name   string
	Target string
	ToMany bool
}

// TypeSchema is the declared attribute schema for one fixture type.
type TypeSchema struct {
	Name          string
	Attributes    map[string]Attribute
	Relationships map[string]Relationship
}

// Attribute returns the scalar attribute with the given name.
func (ts *TypeSchema) Attribute(name string) (Attribute, bool) {
	a, ok := ts.Attributes[name]
	return a, ok
}

// Relationship returns the relationship with the given name.
func (ts *TypeSchema) Relationship(name string) (Relationship, bool) {
	r, ok := ts.Relationships[name]
	return r, ok
}

// PrimaryKeys returns the names of primary-key attributes in sorted order.
func (ts *TypeSchema) PrimaryKeys() []string {
	var keys []string
	for name, a := range ts.Attributes {
		if a.PrimaryKey {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}

// AttributeNames returns all scalar attribute names in sorted order.
func (ts *TypeSchema) AttributeNames() []string {
	names := make([]string, 0, len(ts.Attributes))
	for name := range ts.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RelationshipNames returns all relationship names in sorted order.
func (ts *TypeSchema) RelationshipNames() []string {
	names := make([]string, 0, len(ts.Relationships))
	for name := range ts.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry holds the type schemas registered for a loading session.
// It backs both the engine's type-metadata lookups and the SQLite
// session's table DDL.
type Registry struct {
	types map[string]*TypeSchema
}

// NewRegistry creates a registry holding the given schemas.
// Duplicate type names are a construction error.
func NewRegistry(schemas ...*TypeSchema) (*Registry, error) {
	r := &Registry{types: make(map[string]*TypeSchema, len(schemas))}
	for _, ts := range schemas {
		if err := r.Register(ts); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema; registering the same type name twice is an error.
func (r *Registry) Register(ts *TypeSchema) error {
	if ts.Name == "" {
		return fmt.Errorf("cannot register schema with empty type name")
	}
	if _, exists := r.types[ts.Name]; exists {
		return fmt.Errorf("duplicate type schema: %s", ts.Name)
	}
	r.types[ts.Name] = ts
	return nil
}

// Lookup returns the schema for a type name.
func (r *Registry) Lookup(name string) (*TypeSchema, bool) {
	ts, ok := r.types[name]
	return ts, ok
}

// TypeNames returns all registered type names in sorted order.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
