package kbase_test

import (
	"testing"

	"veritas/internal/kbase"
	"veritas/internal/kbase/memstore"
)

// newFactStoreWithFacts seeds a fresh memstore with facts already
// committed as base (non-inferred) rows, for tests that exercise the
// planner/evaluator/rule-matching layer directly without going through
// Engine.Add.
func newFactStoreWithFacts(t *testing.T, facts ...kbase.Fact) kbase.FactStore {
	t.Helper()
	store := memstore.New()
	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	writes := make([]kbase.WriteFact, len(facts))
	for i, f := range facts {
		writes[i] = kbase.WriteFact{Fact: f}
	}
	if _, err := store.Append(tx, writes); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return store
}
