package fixture

// Record is the raw attribute data supplied for one identifier.
//
// Values are either primitive scalars (string, bool, integer, float, nil),
// an Identifier referencing another record, or a []Identifier for
// collection-valued references. The engine never mutates a Record it is
// handed; coercion always returns a fresh map.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsScalar reports whether v is nil or a primitive scalar value.
// Identifiers, instances, maps, and slices are not scalars.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}
