package engine

// relationshipAttributes returns the set of attribute names of the type
// that are relationship-valued.
//
// The set is computed once per type name and memoized for the engine's
// lifetime: type schemas are fixed during a load, so the cache is lazy
// fill only, never invalidated. The cache lives on the Engine rather than
// in package state so its lifetime is tied to one session.
func (e *Engine) relationshipAttributes(typeName string) (map[string]struct{}, error) {
	if rels, ok := e.relationships[typeName]; ok {
		return rels, nil
	}

	ts, ok := e.backend.Schema(typeName)
	if !ok {
		return nil, newUnknownTypeError(typeName, "")
	}

	rels := make(map[string]struct{}, len(ts.Relationships))
	for name := range ts.Relationships {
		rels[name] = struct{}{}
	}
	e.relationships[typeName] = rels
	return rels, nil
}
