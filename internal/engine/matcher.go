package engine

import (
	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// findExisting determines whether a persisted instance already matches the
// identifier and coerced data. Tiered strategy; the first tier that
// produces a decision wins:
//
//  1. Cache: a live cached instance for the identifier is returned
//     immediately.
//  2. Key filter: primary-key or unique attributes present in data form an
//     equality filter.
//  3. Fallback filter: every null, primitive scalar, or key-resolvable
//     reference in data forms the filter. A reference whose instance has
//     no key yet makes the match indeterminate: nil is returned and the
//     caller creates a new instance rather than matching against an object
//     that cannot be distinguished yet.
//
// Returns (nil, nil) when no existing instance is found.
func (e *Engine) findExisting(id fixture.Identifier, ts *schema.TypeSchema, data map[string]any) (*backend.Instance, error) {
	if inst, ok := e.instances[id]; ok &&
		inst.TypeName() == id.TypeName && e.backend.IsTracked(inst) {
		e.logger.Debug("matched cached instance", "type", id.TypeName, "key", id.Key)
		return inst, nil
	}

	filter := e.keyFilter(ts, data)

	if len(filter) == 0 {
		var indeterminate bool
		filter, indeterminate = e.fallbackFilter(ts, data)
		if indeterminate {
			e.logger.Debug("match indeterminate, treating as new",
				"type", id.TypeName,
				"key", id.Key,
			)
			return nil, nil
		}
	}

	if len(filter) == 0 {
		return nil, nil
	}

	// The existence query must not flush half-built staged instances.
	var found *backend.Instance
	err := e.backend.WithNoAutoflush(func() error {
		inst, err := e.backend.Query(id.TypeName, filter)
		if err != nil {
			return err
		}
		found = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// keyFilter builds an equality filter from primary-key or unique
// attributes present in data with non-reference values.
func (e *Engine) keyFilter(ts *schema.TypeSchema, data map[string]any) map[string]any {
	filter := make(map[string]any)
	for name, v := range data {
		attr, ok := ts.Attribute(name)
		if !ok || !(attr.PrimaryKey || attr.Unique) {
			continue
		}
		if isReference(v) {
			continue
		}
		filter[name] = v
	}
	return filter
}

// fallbackFilter builds an equality filter from every attribute whose
// value is null, a primitive scalar, or a to-one reference whose instance
// already has a resolvable primary key. The second return value reports an
// indeterminate match: a reference was found whose instance has no
// identity yet.
func (e *Engine) fallbackFilter(ts *schema.TypeSchema, data map[string]any) (map[string]any, bool) {
	filter := make(map[string]any)
	for name, v := range data {
		if inst, ok := v.(*backend.Instance); ok {
			if _, isRel := ts.Relationship(name); !isRel {
				continue
			}
			if !e.primaryKeyResolvable(inst) {
				return nil, true
			}
			filter[name] = inst
			continue
		}
		if v == nil || fixture.IsScalar(v) {
			filter[name] = v
		}
		// Collections and other composites never qualify for filtering.
	}
	return filter, false
}

// primaryKeyResolvable reports whether every primary-key attribute of the
// instance's type holds a value. An instance of a type with no declared
// primary key can never be distinguished, so it counts as unresolvable.
func (e *Engine) primaryKeyResolvable(inst *backend.Instance) bool {
	ts, ok := e.backend.Schema(inst.TypeName())
	if !ok {
		return false
	}
	pks := ts.PrimaryKeys()
	if len(pks) == 0 {
		return false
	}
	for _, pk := range pks {
		if e.backend.GetAttribute(inst, pk) == nil {
			return false
		}
	}
	return true
}

// isReference reports whether a coerced value is relationship-valued.
func isReference(v any) bool {
	switch v.(type) {
	case *backend.Instance, []*backend.Instance:
		return true
	default:
		return false
	}
}
