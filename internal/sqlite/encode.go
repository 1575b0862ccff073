package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// encodeValue converts an engine-level attribute value into the value bound
// to a SQL parameter. The same encoding is applied to filter values and to
// flushed columns, so equality filters compare like with like.
func (s *Session) encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *backend.Instance:
		return s.referenceKey(val)
	case []*backend.Instance:
		return s.encodeReferenceList(val)
	case []any:
		return s.encodeAnyList(val)
	case time.Duration:
		return int64(val), nil
	case time.Time:
		if isClockOnly(val) {
			return val.Format("15:04:05"), nil
		}
		return val.UTC().Format(time.RFC3339), nil
	case fixture.Identifier:
		return nil, fmt.Errorf("unresolved identifier reference %s reached storage", val)
	case bool, string, int, int32, int64, float32, float64:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// referenceKey resolves a to-one reference to the referenced instance's
// primary key value. Returns nil when the referenced instance has no
// identity yet (not flushed, no key assigned).
func (s *Session) referenceKey(inst *backend.Instance) (any, error) {
	ts, ok := s.registry.Lookup(inst.TypeName())
	if !ok {
		return nil, fmt.Errorf("reference to unknown type %s", inst.TypeName())
	}
	pks := ts.PrimaryKeys()
	if len(pks) != 1 {
		return nil, fmt.Errorf("type %s: references require exactly one primary key attribute, have %d",
			inst.TypeName(), len(pks))
	}
	pk := inst.Get(pks[0])
	if pk == nil {
		return nil, nil
	}
	return s.encodeValue(pk)
}

// encodeReferenceList persists a to-many relationship as a JSON array of
// target primary keys, in list order.
func (s *Session) encodeReferenceList(insts []*backend.Instance) (any, error) {
	keys := make([]any, len(insts))
	for i, inst := range insts {
		key, err := s.referenceKey(inst)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// encodeAnyList handles []any values: reference lists that arrive untyped,
// or plain scalar lists, both persisted as JSON text.
func (s *Session) encodeAnyList(vals []any) (any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch elem := v.(type) {
		case *backend.Instance:
			key, err := s.referenceKey(elem)
			if err != nil {
				return nil, err
			}
			out[i] = key
		case nil, bool, string, int, int32, int64, float32, float64:
			out[i] = elem
		default:
			return nil, fmt.Errorf("unsupported list element type %T", v)
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeValue normalizes a scanned column value. The sqlite3 driver hands
// TEXT back as []byte when scanning into any.
func decodeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// isClockOnly reports whether t carries only time-of-day fields: the
// engine pins time-kind values to the zero date (January 1, year 1, UTC).
func isClockOnly(t time.Time) bool {
	y, m, d := t.Date()
	return y == 1 && m == time.January && d == 1
}

// persistColumns returns the persisted column names for a type: scalar
// attributes then relationships, each sorted.
func persistColumns(ts *schema.TypeSchema) []string {
	cols := ts.AttributeNames()
	return append(cols, ts.RelationshipNames()...)
}
