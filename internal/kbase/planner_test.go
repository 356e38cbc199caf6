package kbase_test

import (
	"errors"
	"testing"

	"veritas/internal/kbase"
	"veritas/internal/kbase/kberrors"
)

// Plan must place a fully-ground clause before one with a free variable
// on each side, since the ground clause costs nothing to schedule.
func TestPlanOrdersGroundClauseFirst(t *testing.T) {
	schema := familySchema()
	ground := kbase.Clause{Entity: str("brother"), Attr: "child_of", Value: str("father")}
	wide := kbase.Clause{Entity: strVar("a"), Attr: "sibling_of", Value: strVar("b")}

	pred, err := kbase.NewPredicate(schema, wide, ground)
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	planned, err := kbase.Plan(pred, []kbase.Context{{}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if planned.Clauses[0].Attr != "child_of" {
		t.Errorf("expected the ground clause (child_of) scheduled first, got %q", planned.Clauses[0].Attr)
	}
}

// A predicate with two free variables on one side of every remaining
// clause is rejected with UnsolvablePredicate, never silently dropped.
func TestPlanRejectsUnsolvablePredicate(t *testing.T) {
	schema := familySchema()
	unsolvable := kbase.Clause{
		Entity: kbase.And{Left: strVar("a"), Right: strVar("b")},
		Attr:   "child_of",
		Value:  strVar("p"),
	}
	pred, err := kbase.NewPredicate(schema, unsolvable)
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	_, err = kbase.Plan(pred, []kbase.Context{{}})
	if err == nil {
		t.Fatal("expected UnsolvablePredicate")
	}
	var unsolvableErr *kberrors.UnsolvablePredicate
	if !errors.As(err, &unsolvableErr) {
		t.Fatalf("expected *kberrors.UnsolvablePredicate, got %T: %v", err, err)
	}
}

// Plan is deterministic: running it twice on the same predicate and
// contexts yields the same order.
func TestPlanIsDeterministic(t *testing.T) {
	schema := familySchema()
	clauses := []kbase.Clause{
		{Entity: strVar("gc"), Attr: "descendant_of", Value: strVar("p")},
		{Entity: strVar("p"), Attr: "descendant_of", Value: strVar("gp")},
	}
	pred, err := kbase.NewPredicate(schema, clauses...)
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	p1, err := kbase.Plan(pred, []kbase.Context{{}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	pred2, err := kbase.NewPredicate(schema, clauses...)
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	p2, err := kbase.Plan(pred2, []kbase.Context{{}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(p1.Clauses) != len(p2.Clauses) {
		t.Fatalf("different clause counts: %d vs %d", len(p1.Clauses), len(p2.Clauses))
	}
	for i := range p1.Clauses {
		if p1.Clauses[i].Attr != p2.Clauses[i].Attr {
			t.Errorf("clause %d differs between runs: %q vs %q", i, p1.Clauses[i].Attr, p2.Clauses[i].Attr)
		}
	}
}
