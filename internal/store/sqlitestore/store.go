// Package sqlitestore is a reference bitemporal kbase.FactStore adapter
// backed by SQLite, implementing the persisted layout spec.md §6.4
// describes: a facts table with exactly one non-null value_* column, a
// justifications table keyed by (rule_id, justification_hash,
// derived_fact_hash), and a transactions table ordered by an
// autoincrementing sequence so as-of(time) reads can resolve to the last
// transaction committed at or before a given instant.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"veritas/internal/kbase"
)

// Store is a SQLite-backed kbase.FactStore. Schema is consulted to
// decide which value_* column a fact's Ordinal belongs in, and to decode
// rows back into typed Ordinal values.
type Store struct {
	db     *sql.DB
	schema *kbase.Schema

	txs map[kbase.TxID]*sql.Tx
}

// Open opens (creating if necessary) a SQLite database at path and
// brings its schema up to date.
func Open(path string, schema *kbase.Schema) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers; avoid SQLITE_BUSY churn
	s := &Store{db: db, schema: schema, txs: map[kbase.TxID]*sql.Tx{}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Begin() (kbase.TxID, error) {
	sqlTx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("sqlitestore: begin: %w", err)
	}
	id := kbase.TxID(uuid.NewString())
	if _, err := sqlTx.Exec(`INSERT INTO transactions (id, timestamp) VALUES (?, ?)`, string(id), time.Now()); err != nil {
		sqlTx.Rollback()
		return "", fmt.Errorf("sqlitestore: record transaction: %w", err)
	}
	s.txs[id] = sqlTx
	return id, nil
}

func (s *Store) tx(id kbase.TxID) (*sql.Tx, error) {
	t, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("sqlitestore: transaction %q is not open", id)
	}
	return t, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// reader returns the store's single in-flight transaction, if the core
// currently has exactly one open, or the pooled *sql.DB handle otherwise.
// Every Engine operation opens at most one transaction at a time and reads
// from within it before committing, so routing those reads through the same
// *sql.Tx both avoids starving the single-connection pool (Open sets
// SetMaxOpenConns(1)) and gives them the tx's own view of its uncommitted
// writes, which a second connection would not see under SQLite's isolation.
func (s *Store) reader() queryer {
	if len(s.txs) == 1 {
		for _, t := range s.txs {
			return t
		}
	}
	return s.db
}

func (s *Store) Commit(id kbase.TxID) error {
	t, err := s.tx(id)
	if err != nil {
		return err
	}
	delete(s.txs, id)
	if err := t.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit %s: %w", id, err)
	}
	return nil
}

func (s *Store) Rollback(id kbase.TxID) error {
	t, err := s.tx(id)
	if err != nil {
		return err
	}
	delete(s.txs, id)
	if err := t.Rollback(); err != nil {
		return fmt.Errorf("sqlitestore: rollback %s: %w", id, err)
	}
	return nil
}

// ordinalColumns splits an Ordinal into the three nullable columns the
// facts table stores, exactly one of which is non-null.
func ordinalColumns(v kbase.Ordinal) (valueStr sql.NullString, valueInt sql.NullInt64, valueFloat sql.NullFloat64) {
	switch v.Type() {
	case kbase.StringType:
		valueStr = sql.NullString{String: v.AsString(), Valid: true}
	case kbase.IntType:
		valueInt = sql.NullInt64{Int64: v.AsInt(), Valid: true}
	case kbase.FloatType:
		valueFloat = sql.NullFloat64{Float64: v.AsFloat(), Valid: true}
	}
	return
}

func (s *Store) decodeOrdinal(attr string, valueStr sql.NullString, valueInt sql.NullInt64, valueFloat sql.NullFloat64) (kbase.Ordinal, error) {
	decl, err := s.schema.Get(attr)
	if err != nil {
		return kbase.Ordinal{}, err
	}
	switch decl.DataType {
	case kbase.StringType:
		return kbase.StringValue(valueStr.String), nil
	case kbase.IntType:
		return kbase.IntValue(valueInt.Int64), nil
	case kbase.FloatType:
		return kbase.FloatValue(valueFloat.Float64), nil
	default:
		return kbase.Ordinal{}, fmt.Errorf("sqlitestore: attribute %q has unknown data type", attr)
	}
}

func (s *Store) Append(txID kbase.TxID, facts []kbase.WriteFact) ([]kbase.FactID, error) {
	t, err := s.tx(txID)
	if err != nil {
		return nil, err
	}
	ids := make([]kbase.FactID, len(facts))
	for i, wf := range facts {
		valueStr, valueInt, valueFloat := ordinalColumns(wf.Fact.Value)

		var existingID int64
		err := t.QueryRow(`
			SELECT id FROM facts
			WHERE entity = ? AND attr = ? AND removed_tx IS NULL
			  AND value_str IS ? AND value_int IS ? AND value_float IS ?
		`, wf.Fact.Entity, wf.Fact.Attr, valueStr, valueInt, valueFloat).Scan(&existingID)
		if err == nil {
			ids[i] = kbase.FactID(fmt.Sprintf("%d", existingID))
			continue
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("sqlitestore: check existing fact: %w", err)
		}

		res, err := t.Exec(`
			INSERT INTO facts (entity, attr, value_str, value_int, value_float, is_inferred, added_tx, removed_tx)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		`, wf.Fact.Entity, wf.Fact.Attr, valueStr, valueInt, valueFloat, wf.IsInferred, string(txID))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: insert fact: %w", err)
		}
		insertedID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: last insert id: %w", err)
		}
		ids[i] = kbase.FactID(fmt.Sprintf("%d", insertedID))
	}
	return ids, nil
}

func (s *Store) MarkRemoved(txID kbase.TxID, ids []kbase.FactID) error {
	t, err := s.tx(txID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := t.Exec(`UPDATE facts SET removed_tx = ? WHERE id = ? AND removed_tx IS NULL`, string(txID), id); err != nil {
			return fmt.Errorf("sqlitestore: mark removed %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) FactInfo(f kbase.Fact) (kbase.FactID, bool, bool, error) {
	valueStr, valueInt, valueFloat := ordinalColumns(f.Value)
	var id int64
	var isInferred bool
	err := s.reader().QueryRow(`
		SELECT id, is_inferred FROM facts
		WHERE entity = ? AND attr = ? AND removed_tx IS NULL
		  AND value_str IS ? AND value_int IS ? AND value_float IS ?
	`, f.Entity, f.Attr, valueStr, valueInt, valueFloat).Scan(&id, &isInferred)
	if err == sql.ErrNoRows {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, fmt.Errorf("sqlitestore: fact info: %w", err)
	}
	return kbase.FactID(fmt.Sprintf("%d", id)), true, isInferred, nil
}

// resolveView translates an AsOf into a target transaction sequence
// number. bounded is false for view.Now (no upper bound, current state);
// empty is true when a historical view names a transaction/time with no
// matching recorded transaction (an empty view per spec §6.3).
func (s *Store) resolveView(view kbase.AsOf) (seq int64, bounded bool, empty bool, err error) {
	if view.Now {
		return 0, false, false, nil
	}
	if view.Tx != "" {
		err = s.reader().QueryRow(`SELECT seq FROM transactions WHERE id = ?`, string(view.Tx)).Scan(&seq)
	} else {
		err = s.reader().QueryRow(`SELECT seq FROM transactions WHERE timestamp <= ? ORDER BY seq DESC LIMIT 1`, view.Time).Scan(&seq)
	}
	if err == sql.ErrNoRows {
		return 0, true, true, nil
	}
	if err != nil {
		return 0, true, false, fmt.Errorf("sqlitestore: resolve view: %w", err)
	}
	return seq, true, false, nil
}

func (s *Store) Lookup(view kbase.AsOf, clause kbase.Clause) ([]kbase.Fact, error) {
	seq, bounded, empty, err := s.resolveView(view)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	var rows *sql.Rows
	if !bounded {
		rows, err = s.reader().Query(`
			SELECT entity, attr, value_str, value_int, value_float
			FROM facts WHERE attr = ? AND removed_tx IS NULL
		`, clause.Attr)
	} else {
		rows, err = s.reader().Query(`
			SELECT f.entity, f.attr, f.value_str, f.value_int, f.value_float
			FROM facts f
			JOIN transactions ta ON ta.id = f.added_tx
			LEFT JOIN transactions tr ON tr.id = f.removed_tx
			WHERE f.attr = ? AND ta.seq <= ?
			  AND (f.removed_tx IS NULL OR tr.seq > ?)
		`, clause.Attr, seq, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: lookup: %w", err)
	}
	defer rows.Close()

	var out []kbase.Fact
	for rows.Next() {
		var entity, attr string
		var valueStr sql.NullString
		var valueInt sql.NullInt64
		var valueFloat sql.NullFloat64
		if err := rows.Scan(&entity, &attr, &valueStr, &valueInt, &valueFloat); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan fact: %w", err)
		}
		ordinal, err := s.decodeOrdinal(attr, valueStr, valueInt, valueFloat)
		if err != nil {
			return nil, err
		}
		out = append(out, kbase.Fact{Entity: entity, Attr: attr, Value: ordinal})
	}
	return out, rows.Err()
}

func (s *Store) AllFacts(view kbase.AsOf) ([]kbase.Fact, error) {
	seq, bounded, empty, err := s.resolveView(view)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}
	var rows *sql.Rows
	if !bounded {
		rows, err = s.reader().Query(`SELECT entity, attr, value_str, value_int, value_float FROM facts WHERE removed_tx IS NULL`)
	} else {
		rows, err = s.reader().Query(`
			SELECT f.entity, f.attr, f.value_str, f.value_int, f.value_float
			FROM facts f
			JOIN transactions ta ON ta.id = f.added_tx
			LEFT JOIN transactions tr ON tr.id = f.removed_tx
			WHERE ta.seq <= ? AND (f.removed_tx IS NULL OR tr.seq > ?)
		`, seq, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: all facts: %w", err)
	}
	defer rows.Close()

	var out []kbase.Fact
	for rows.Next() {
		var entity, attr string
		var valueStr sql.NullString
		var valueInt sql.NullInt64
		var valueFloat sql.NullFloat64
		if err := rows.Scan(&entity, &attr, &valueStr, &valueInt, &valueFloat); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan fact: %w", err)
		}
		ordinal, err := s.decodeOrdinal(attr, valueStr, valueInt, valueFloat)
		if err != nil {
			return nil, err
		}
		out = append(out, kbase.Fact{Entity: entity, Attr: attr, Value: ordinal})
	}
	return out, rows.Err()
}

func (s *Store) AppendJustifications(txID kbase.TxID, justRows []kbase.JustRow) error {
	t, err := s.tx(txID)
	if err != nil {
		return err
	}
	for _, jr := range justRows {
		id, exists, _, err := s.factInfoTx(t, jr.DerivedFact)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("sqlitestore: justification references fact %+v which is not yet stored", jr.DerivedFact)
		}
		if _, err := t.Exec(`
			INSERT OR IGNORE INTO justifications (derived_fact_id, derived_fact_hash, rule_id, justification_hash, deleted)
			VALUES (?, ?, ?, ?, 0)
		`, id, string(jr.DerivedFactHash), string(jr.RuleID), string(jr.JustificationHash)); err != nil {
			return fmt.Errorf("sqlitestore: insert justification: %w", err)
		}
	}
	return nil
}

func (s *Store) factInfoTx(t *sql.Tx, f kbase.Fact) (kbase.FactID, bool, bool, error) {
	valueStr, valueInt, valueFloat := ordinalColumns(f.Value)
	var id int64
	var isInferred bool
	err := t.QueryRow(`
		SELECT id, is_inferred FROM facts
		WHERE entity = ? AND attr = ? AND removed_tx IS NULL
		  AND value_str IS ? AND value_int IS ? AND value_float IS ?
	`, f.Entity, f.Attr, valueStr, valueInt, valueFloat).Scan(&id, &isInferred)
	if err == sql.ErrNoRows {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, fmt.Errorf("sqlitestore: fact info (tx): %w", err)
	}
	return kbase.FactID(fmt.Sprintf("%d", id)), true, isInferred, nil
}

func (s *Store) DeleteJustifications(txID kbase.TxID, keys []kbase.JustDeleteKey) error {
	t, err := s.tx(txID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := t.Exec(`
			UPDATE justifications SET deleted = 1
			WHERE rule_id = ? AND justification_hash = ? AND derived_fact_hash = ? AND deleted = 0
		`, string(k.RuleID), string(k.JustificationHash), string(k.DerivedFactHash)); err != nil {
			return fmt.Errorf("sqlitestore: delete justification: %w", err)
		}
	}
	return nil
}

func (s *Store) CountJustificationsFor(derivedFactHash kbase.Hash128) (int, error) {
	var n int
	err := s.reader().QueryRow(`SELECT COUNT(*) FROM justifications WHERE derived_fact_hash = ? AND deleted = 0`, string(derivedFactHash)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: count justifications: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteJustificationsForUnknownRules(txID kbase.TxID, keep map[kbase.Hash128]bool) ([]kbase.Fact, error) {
	t, err := s.tx(txID)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(`
		SELECT DISTINCT j.rule_id, f.entity, f.attr, f.value_str, f.value_int, f.value_float
		FROM justifications j JOIN facts f ON f.id = j.derived_fact_id
		WHERE j.deleted = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scan rule ids: %w", err)
	}
	type candidate struct {
		ruleID string
		fact   kbase.Fact
	}
	var candidates []candidate
	for rows.Next() {
		var ruleID, entity, attr string
		var valueStr sql.NullString
		var valueInt sql.NullInt64
		var valueFloat sql.NullFloat64
		if err := rows.Scan(&ruleID, &entity, &attr, &valueStr, &valueInt, &valueFloat); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlitestore: scan rule id row: %w", err)
		}
		ordinal, derr := s.decodeOrdinal(attr, valueStr, valueInt, valueFloat)
		if derr != nil {
			rows.Close()
			return nil, derr
		}
		candidates = append(candidates, candidate{ruleID: ruleID, fact: kbase.Fact{Entity: entity, Attr: attr, Value: ordinal}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seen := map[kbase.Fact]bool{}
	var stale []kbase.Fact
	for _, c := range candidates {
		if keep[kbase.Hash128(c.ruleID)] {
			continue
		}
		if _, err := t.Exec(`UPDATE justifications SET deleted = 1 WHERE rule_id = ? AND deleted = 0`, c.ruleID); err != nil {
			return nil, fmt.Errorf("sqlitestore: delete stale rule justifications: %w", err)
		}
		if !seen[c.fact] {
			seen[c.fact] = true
			stale = append(stale, c.fact)
		}
	}
	return stale, nil
}

var _ kbase.FactStore = (*Store)(nil)
