package sqlite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// Query runs an equality filter expecting zero or one match.
//
// Unless autoflush is suppressed, staged writes are flushed first so the
// query sees a consistent view. Filter columns are assembled in sorted
// order and every value is parameterized; nil filter values compare with
// IS NULL. A second matching row is a fixture data fault and surfaces as
// *backend.AmbiguousMatchError.
func (s *Session) Query(typeName string, filter map[string]any) (*backend.Instance, error) {
	ts, ok := s.registry.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("query %s: unknown type", typeName)
	}
	if len(filter) == 0 {
		return nil, fmt.Errorf("query %s: empty filter", typeName)
	}

	if s.noAutoflush == 0 {
		if err := s.flush(); err != nil {
			return nil, fmt.Errorf("autoflush before query: %w", err)
		}
	}

	names := make([]string, 0, len(filter))
	for name := range filter {
		names = append(names, name)
	}
	sort.Strings(names)

	var conds []string
	var params []any
	for _, name := range names {
		enc, err := s.encodeValue(filter[name])
		if err != nil {
			return nil, fmt.Errorf("query %s filter %q: %w", typeName, name, err)
		}
		if enc == nil {
			conds = append(conds, quoteIdent(name)+" IS NULL")
			continue
		}
		conds = append(conds, quoteIdent(name)+" = ?")
		params = append(params, enc)
	}

	cols := persistColumns(ts)
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
	}

	// LIMIT 2 is enough to distinguish "unique" from "ambiguous" without
	// scanning further. ORDER BY keeps the scan deterministic.
	query := fmt.Sprintf("SELECT rowid, %s FROM %s WHERE %s ORDER BY rowid ASC LIMIT 2",
		strings.Join(quoted, ", "), quoteIdent(typeName), strings.Join(conds, " AND "))

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", typeName, err)
	}
	defer rows.Close()

	var matches []*backend.Instance
	for rows.Next() {
		var rowid int64
		vals := make([]any, len(cols))
		dests := make([]any, 0, len(cols)+1)
		dests = append(dests, &rowid)
		for i := range vals {
			dests = append(dests, &vals[i])
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", typeName, err)
		}

		attrs := make(map[string]any, len(cols))
		for i, col := range cols {
			attrs[col] = decodeValue(vals[i])
		}
		matches = append(matches, s.materialize(ts, rowid, attrs))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: iterate: %w", typeName, err)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, &backend.AmbiguousMatchError{
			TypeName: typeName,
			Filter:   names,
			Matches:  len(matches),
		}
	}
}

// materialize returns the session handle for a queried row, reusing the
// identity map so repeated matches of the same row yield the same handle.
// Freshly materialized handles enter the tracked set.
func (s *Session) materialize(ts *schema.TypeSchema, rowid int64, attrs map[string]any) *backend.Instance {
	if inst := s.byRow[ts.Name][rowid]; inst != nil {
		return inst
	}

	inst := backend.NewInstance(s.tokens.Generate(), ts.Name, attrs)
	s.tracked[inst.Token()] = inst
	s.rowids[inst.Token()] = rowid
	byRow := s.byRow[ts.Name]
	if byRow == nil {
		byRow = make(map[int64]*backend.Instance)
		s.byRow[ts.Name] = byRow
	}
	byRow[rowid] = inst
	return inst
}

// Rows returns all persisted rows of a type in rowid order with decoded
// column values. Used by snapshot tooling and tests.
func (s *Session) Rows(typeName string) ([]map[string]any, error) {
	ts, ok := s.registry.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("rows %s: unknown type", typeName)
	}

	cols := persistColumns(ts)
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid ASC",
		strings.Join(quoted, ", "), quoteIdent(typeName)))
	if err != nil {
		return nil, fmt.Errorf("rows %s: %w", typeName, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("rows %s: scan: %w", typeName, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = decodeValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: iterate: %w", typeName, err)
	}
	return out, nil
}
