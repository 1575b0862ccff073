package sqlite

import (
	"fmt"
	"strings"

	"github.com/elementhuman/py-yaml-fixtures/internal/schema"
)

// ensureTables creates one table per registered type. Idempotent via
// CREATE TABLE IF NOT EXISTS; type schemas are immutable during a load, so
// no migration machinery is needed here.
func (s *Session) ensureTables() error {
	for _, name := range s.registry.TypeNames() {
		ts, _ := s.registry.Lookup(name)
		ddl := s.tableDDL(ts)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}

// tableDDL renders the CREATE TABLE statement for one type.
//
// Column rules:
//   - a single int primary key becomes INTEGER PRIMARY KEY (rowid alias,
//     assigned by SQLite on insert)
//   - other primary keys become a table-level PRIMARY KEY constraint
//   - unique attributes get inline UNIQUE
//   - to-one relationships store the target's primary key
//   - to-many relationships store a JSON array of target primary keys
func (s *Session) tableDDL(ts *schema.TypeSchema) string {
	intPK, hasIntPK := intPrimaryKey(ts)

	var cols []string
	for _, name := range ts.AttributeNames() {
		attr := ts.Attributes[name]
		if hasIntPK && name == intPK {
			cols = append(cols, fmt.Sprintf("%s INTEGER PRIMARY KEY", quoteIdent(name)))
			continue
		}
		def := fmt.Sprintf("%s %s", quoteIdent(name), columnType(attr.Kind))
		if attr.Unique {
			def += " UNIQUE"
		}
		cols = append(cols, def)
	}

	for _, name := range ts.RelationshipNames() {
		rel := ts.Relationships[name]
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(name), s.relationshipColumnType(rel)))
	}

	if pks := ts.PrimaryKeys(); len(pks) > 0 && !hasIntPK {
		quoted := make([]string, len(pks))
		for i, pk := range pks {
			quoted[i] = quoteIdent(pk)
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdent(ts.Name), strings.Join(cols, ",\n\t"))
}

// relationshipColumnType picks the column type for a relationship: the
// target's single int primary key maps to INTEGER, anything else to TEXT.
// To-many columns hold JSON text regardless of target key type.
func (s *Session) relationshipColumnType(rel schema.Relationship) string {
	if rel.ToMany {
		return "TEXT"
	}
	target, ok := s.registry.Lookup(rel.Target)
	if !ok {
		return "TEXT"
	}
	if _, hasIntPK := intPrimaryKey(target); hasIntPK {
		return "INTEGER"
	}
	return "TEXT"
}

// columnType maps a semantic kind to a SQLite column type. Dates, times,
// datetimes, and UUIDs persist as text; durations as integer nanoseconds.
func columnType(kind schema.Kind) string {
	switch kind {
	case schema.KindInt, schema.KindBool, schema.KindDuration:
		return "INTEGER"
	case schema.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// intPrimaryKey returns the name of the type's primary key when it is a
// single attribute of int kind (the rowid-alias case).
func intPrimaryKey(ts *schema.TypeSchema) (string, bool) {
	pks := ts.PrimaryKeys()
	if len(pks) != 1 {
		return "", false
	}
	if attr := ts.Attributes[pks[0]]; attr.Kind != schema.KindInt {
		return "", false
	}
	return pks[0], true
}

// quoteIdent quotes an identifier for SQLite. Fixture type and attribute
// names come from schema files, not user input, but quoting keeps reserved
// words usable as names.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
