package kbase

import "time"

// TxID identifies one transaction. The store is expected to hand out
// time-ordered ids so that as-of(timestamp) resolution can binary-search.
type TxID string

// AsOf selects a bitemporal read: either a specific transaction, or the
// last transaction whose timestamp is <= Time, or the current state when
// Now is set. The zero value is not the current view: it selects the zero
// time, at which no transaction exists, so its reads are empty. Use Now()
// for current reads.
type AsOf struct {
	Tx   TxID
	Time time.Time
	Now  bool
}

// Now is the always-current view selector.
func Now() AsOf { return AsOf{Now: true} }

// AtTx resolves reads against the state as of the given transaction.
func AtTx(tx TxID) AsOf { return AsOf{Tx: tx} }

// AtTime resolves reads against the last transaction committed at or
// before t. If no such transaction exists, the view is empty.
func AtTime(t time.Time) AsOf { return AsOf{Time: t} }

// JustRow is one row of the justification relation: a single way a rule
// derived one fact from one set of supporting facts.
type JustRow struct {
	RuleID            Hash128
	JustificationHash Hash128
	DerivedFact       Fact
	DerivedFactHash   Hash128
}

// WriteFact pairs a fact with whether it is user-asserted or derived, for
// the batch shape FactStore.Append expects.
type WriteFact struct {
	Fact       Fact
	IsInferred bool
}

// JustDeleteKey identifies justification rows to delete, by the same
// three-part key they are stored and deduplicated under.
type JustDeleteKey struct {
	RuleID            Hash128
	JustificationHash Hash128
	DerivedFactHash   Hash128
}

// FactID is an opaque handle a store assigns to an appended fact, used to
// mark it removed or to count its justifications.
type FactID string

// FactStore is the external contract the core consumes (spec §6.1). The
// core never depends on a concrete storage engine beyond this interface;
// a conforming adapter owns persistence, transaction ids, and bitemporal
// bookkeeping.
type FactStore interface {
	// Lookup returns every stored fact valid at view that satisfies
	// clause.Attr == fact.Attr plus the entity/value expressions
	// according to kbase's matching semantics. May over-approximate;
	// the evaluator re-filters via Clause.Matches.
	Lookup(view AsOf, clause Clause) ([]Fact, error)

	// Begin opens a new transaction. All writes inside one core
	// operation (add/remove/saturation) share a single transaction.
	Begin() (TxID, error)

	// Append writes facts as part of tx and returns their store-assigned
	// ids in the same order. Idempotent on (entity, attr, value,
	// valid-now): appending an already-valid fact returns its existing id
	// without creating a duplicate row.
	Append(tx TxID, facts []WriteFact) ([]FactID, error)

	// AppendJustifications records rows, deduplicated on
	// (rule_id, justification_hash, derived_fact_hash).
	AppendJustifications(tx TxID, rows []JustRow) error

	// MarkRemoved marks facts as removed as of tx.
	MarkRemoved(tx TxID, ids []FactID) error

	// DeleteJustifications removes justification rows matching any of
	// the given keys.
	DeleteJustifications(tx TxID, keys []JustDeleteKey) error

	// CountJustificationsFor reports how many justification rows still
	// support a derived fact, by the fact's content hash.
	CountJustificationsFor(derivedFactHash Hash128) (int, error)

	// FactInfo resolves the currently-valid id and provenance for a
	// ground fact, if one is currently valid. Used both to translate a
	// caller-named Fact into the id MarkRemoved needs, and to check
	// whether a fact the user wants to retract is user-asserted or
	// derived (CannotRetractDerived).
	FactInfo(f Fact) (id FactID, exists bool, isInferred bool, err error)

	// DeleteJustificationsForUnknownRules removes every justification row
	// whose rule_id is not in keep, returning the derived facts that may
	// now be orphaned.
	DeleteJustificationsForUnknownRules(tx TxID, keep map[Hash128]bool) ([]Fact, error)

	// AllFacts returns every fact valid at view, used by refresh_inference
	// to re-seed saturation from the whole store.
	AllFacts(view AsOf) ([]Fact, error)

	// Commit finalizes tx. After Commit, the transaction's writes become
	// visible to Now() reads.
	Commit(tx TxID) error

	// Rollback discards every write made under tx.
	Rollback(tx TxID) error
}
