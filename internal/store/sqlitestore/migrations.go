package sqlitestore

import (
	"database/sql"
	"fmt"

	"veritas/internal/logging"
)

// CurrentSchemaVersion tracks the sqlitestore table layout:
// v1: facts, justifications, transactions per spec §6.4.
const CurrentSchemaVersion = 1

// migration is a single additive schema change, applied only if the
// table exists but the column doesn't yet - the same idempotent,
// probe-before-alter strategy the teacher's store package used for
// upgrading long-lived databases in place.
type migration struct {
	table  string
	column string
	def    string
}

var pendingMigrations = []migration{}

func (s *Store) migrate() error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			id        TEXT UNIQUE NOT NULL,
			timestamp DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("sqlitestore: create transactions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			entity      TEXT NOT NULL,
			attr        TEXT NOT NULL,
			value_str   TEXT,
			value_int   INTEGER,
			value_float REAL,
			is_inferred BOOLEAN NOT NULL,
			added_tx    TEXT NOT NULL,
			removed_tx  TEXT
		)
	`); err != nil {
		return fmt.Errorf("sqlitestore: create facts table: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_facts_attr ON facts(attr)`); err != nil {
		return fmt.Errorf("sqlitestore: create facts attr index: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_facts_valid ON facts(entity, attr, removed_tx)`); err != nil {
		return fmt.Errorf("sqlitestore: create facts valid index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS justifications (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			derived_fact_id    INTEGER NOT NULL,
			derived_fact_hash  TEXT NOT NULL,
			rule_id            TEXT NOT NULL,
			justification_hash TEXT NOT NULL,
			deleted            BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE(rule_id, justification_hash, derived_fact_hash)
		)
	`); err != nil {
		return fmt.Errorf("sqlitestore: create justifications table: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_just_derived_hash ON justifications(derived_fact_hash)`); err != nil {
		return fmt.Errorf("sqlitestore: create justifications hash index: %w", err)
	}

	for _, m := range pendingMigrations {
		if !tableExists(s.db, m.table) {
			continue
		}
		if columnExists(s.db, m.table, m.column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := s.db.Exec(query); err != nil {
			logging.Get(logging.CategoryStore).Warn("migration failed (may already exist): %s.%s: %v", m.table, m.column, err)
			continue
		}
		logging.Get(logging.CategoryStore).Info("migration applied: added %s.%s", m.table, m.column)
	}

	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	return err == nil && count > 0
}
