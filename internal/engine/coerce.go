package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/fixture"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// coerce converts each raw attribute value into the value the backend
// expects, branching on the attribute's semantic kind. Relationship
// attributes resolve recursively to instances. Returns a new map; the
// input record is never mutated.
func (e *Engine) coerce(id fixture.Identifier, ts *schema.TypeSchema, rec fixture.Record) (map[string]any, error) {
	rels, err := e.relationshipAttributes(id.TypeName)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(rec))
	for _, attr := range sortedKeys(rec) {
		raw := rec[attr]

		if _, isRel := rels[attr]; isRel {
			resolved, err := e.resolveReferences(raw)
			if err != nil {
				return nil, newInvalidValueError(id.TypeName, id.Key, attr, err)
			}
			data[attr] = resolved
			continue
		}

		a, declared := ts.Attribute(attr)
		if !declared {
			// No type information: pass through unchanged.
			data[attr] = raw
			continue
		}

		coerced, err := e.coerceScalar(a.Kind, raw)
		if err != nil {
			return nil, newInvalidValueError(id.TypeName, id.Key, attr, err)
		}
		data[attr] = coerced
	}
	return data, nil
}

// coerceScalar converts one raw scalar by semantic kind. UUIDs and plain
// kinds pass through unchanged; already-typed values pass through too.
func (e *Engine) coerceScalar(kind schema.Kind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch kind {
	case schema.KindDate:
		return e.coerceTemporal(raw, e.dateFactory)
	case schema.KindDatetime:
		return e.coerceTemporal(raw, e.datetimeFactory)
	case schema.KindTime:
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want \"HH:MM:SS\" string, got %T", raw)
		}
		return parseClock(s)
	case schema.KindDuration:
		if d, ok := raw.(time.Duration); ok {
			return d, nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want \"<magnitude> <unit>\" string, got %T", raw)
		}
		return parseDurationString(s)
	default:
		// uuid, text, int, float, bool: pass through unchanged.
		return raw, nil
	}
}

func (e *Engine) coerceTemporal(raw any, factory ValueFactory) (any, error) {
	if t, ok := raw.(time.Time); ok {
		return t, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("want text value, got %T", raw)
	}
	return factory(s)
}

// resolveReferences resolves a relationship value: a single identifier, a
// collection of identifiers, or an already-resolved instance (or list).
func (e *Engine) resolveReferences(raw any) (any, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case fixture.Identifier:
		return e.resolveIdentifier(val)
	case *backend.Instance:
		return val, nil
	case []*backend.Instance:
		return val, nil
	case []fixture.Identifier:
		insts := make([]*backend.Instance, len(val))
		for i, ref := range val {
			inst, err := e.resolveIdentifier(ref)
			if err != nil {
				return nil, err
			}
			insts[i] = inst
		}
		return insts, nil
	case []any:
		insts := make([]*backend.Instance, len(val))
		for i, elem := range val {
			switch ref := elem.(type) {
			case fixture.Identifier:
				inst, err := e.resolveIdentifier(ref)
				if err != nil {
					return nil, err
				}
				insts[i] = inst
			case *backend.Instance:
				insts[i] = ref
			default:
				return nil, fmt.Errorf("reference list element %d: want identifier, got %T", i, elem)
			}
		}
		return insts, nil
	default:
		return nil, fmt.Errorf("want identifier or identifier list, got %T", raw)
	}
}

// resolveIdentifier maps a referenced identifier to its instance.
//
// Identifiers reconciled earlier in the load order resolve through the
// instance cache. A reference to a not-yet-reconciled identifier
// reconciles an empty record for it depth-first: the placeholder instance
// has no primary key yet, so matching against the referring record stays
// conservative, and the later full reconcile of the referenced record
// updates the same instance in place.
func (e *Engine) resolveIdentifier(ref fixture.Identifier) (*backend.Instance, error) {
	if inst, ok := e.instances[ref]; ok &&
		inst.TypeName() == ref.TypeName && e.backend.IsTracked(inst) {
		return inst, nil
	}

	e.logger.Debug("resolving forward reference",
		"type", ref.TypeName,
		"key", ref.Key,
	)
	inst, _, err := e.Reconcile(ref, fixture.Record{})
	return inst, err
}

// parseClock parses a colon-separated time of day ("HH", "HH:MM", or
// "HH:MM:SS") into a time.Time pinned to the zero date. Omitted minute and
// second components default to zero.
func parseClock(s string) (time.Time, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return time.Time{}, fmt.Errorf("malformed time of day %q: want \"HH:MM:SS\"", s)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed time of day %q: %w", s, err)
		}
		nums[i] = n
	}

	h, m, sec := nums[0], nums[1], nums[2]
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return time.Time{}, fmt.Errorf("time of day %q out of range", s)
	}
	return time.Date(1, time.January, 1, h, m, sec, 0, time.UTC), nil
}

// durationUnits maps duration field names to their base length.
// Singular and plural forms are both accepted.
var durationUnits = map[string]time.Duration{
	"microseconds": time.Microsecond,
	"microsecond":  time.Microsecond,
	"milliseconds": time.Millisecond,
	"millisecond":  time.Millisecond,
	"seconds":      time.Second,
	"second":       time.Second,
	"minutes":      time.Minute,
	"minute":       time.Minute,
	"hours":        time.Hour,
	"hour":         time.Hour,
	"days":         24 * time.Hour,
	"day":          24 * time.Hour,
	"weeks":        7 * 24 * time.Hour,
	"week":         7 * 24 * time.Hour,
}

// parseDurationString parses the two-token "<magnitude> <unit>" form,
// e.g. "3 days" or "1.5 hours".
func parseDurationString(s string) (time.Duration, error) {
	tokens := strings.Fields(s)
	if len(tokens) != 2 {
		return 0, fmt.Errorf("malformed duration %q: want \"<magnitude> <unit>\"", s)
	}

	magnitude, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed duration %q: %w", s, err)
	}

	unit, ok := durationUnits[strings.ToLower(tokens[1])]
	if !ok {
		return 0, fmt.Errorf("malformed duration %q: unknown unit %q", s, tokens[1])
	}

	return time.Duration(magnitude * float64(unit)), nil
}
