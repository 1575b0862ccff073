package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/elementhuman/py-yaml-fixtures/internal/backend"
)

// flush writes all staged instances in staging order inside a single
// transaction. Instances staged before their referents are still safe:
// reconciliation order guarantees referenced instances were staged (and are
// inserted) first, so their primary keys are assigned by the time a
// referring row is encoded.
func (s *Session) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}

	for _, inst := range s.pending {
		if rowid, flushed := s.rowids[inst.Token()]; flushed {
			err = s.updateRow(tx, inst, rowid)
		} else {
			err = s.insertRow(tx, inst)
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}

	s.pending = nil
	s.pendingSet = make(map[string]bool)
	return nil
}

// insertRow inserts a new row for an instance and records its identity.
// A single int primary key left unset is assigned by SQLite and written
// back onto the instance, making the key resolvable from then on.
func (s *Session) insertRow(tx *sql.Tx, inst *backend.Instance) error {
	ts, ok := s.registry.Lookup(inst.TypeName())
	if !ok {
		return fmt.Errorf("flush %s: unknown type", inst.TypeName())
	}
	intPK, hasIntPK := intPrimaryKey(ts)

	var cols []string
	var params []any
	for _, col := range persistColumns(ts) {
		enc, err := s.encodeValue(inst.Get(col))
		if err != nil {
			return fmt.Errorf("flush %s attribute %q: %w", inst.TypeName(), col, err)
		}
		if hasIntPK && col == intPK && enc == nil {
			continue // let SQLite assign the rowid-aliased key
		}
		cols = append(cols, quoteIdent(col))
		params = append(params, enc)
	}

	var res sql.Result
	var err error
	if len(cols) == 0 {
		res, err = tx.Exec(fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(ts.Name)))
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		res, err = tx.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(ts.Name), strings.Join(cols, ", "), placeholders), params...)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", inst.TypeName(), err)
	}

	rowid, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert %s: rowid: %w", inst.TypeName(), err)
	}

	s.rowids[inst.Token()] = rowid
	byRow := s.byRow[ts.Name]
	if byRow == nil {
		byRow = make(map[int64]*backend.Instance)
		s.byRow[ts.Name] = byRow
	}
	byRow[rowid] = inst

	if hasIntPK && inst.Get(intPK) == nil {
		inst.Set(intPK, rowid)
	}
	return nil
}

// updateRow rewrites all non-key columns of an already-flushed instance.
func (s *Session) updateRow(tx *sql.Tx, inst *backend.Instance, rowid int64) error {
	ts, ok := s.registry.Lookup(inst.TypeName())
	if !ok {
		return fmt.Errorf("flush %s: unknown type", inst.TypeName())
	}

	var sets []string
	var params []any
	for _, col := range persistColumns(ts) {
		if attr, isAttr := ts.Attribute(col); isAttr && attr.PrimaryKey {
			continue
		}
		enc, err := s.encodeValue(inst.Get(col))
		if err != nil {
			return fmt.Errorf("flush %s attribute %q: %w", inst.TypeName(), col, err)
		}
		sets = append(sets, quoteIdent(col)+" = ?")
		params = append(params, enc)
	}
	if len(sets) == 0 {
		return nil
	}

	params = append(params, rowid)
	_, err := tx.Exec(fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?",
		quoteIdent(ts.Name), strings.Join(sets, ", ")), params...)
	if err != nil {
		return fmt.Errorf("update %s: %w", inst.TypeName(), err)
	}
	return nil
}
