package kbase_test

import (
	"errors"
	"testing"

	"veritas/internal/kbase"
	"veritas/internal/kbase/kberrors"
)

func varC(name string, t kbase.OrdinalType) kbase.Expr { return kbase.Var{Name: name, Type: t} }

func TestCompileRulesRejectsUncoveredHeadVariable(t *testing.T) {
	schema := familySchema()
	decl := kbase.RuleDecl{
		Name: "bad",
		Body: []kbase.Clause{
			{Entity: varC("a", kbase.StringType), Attr: "child_of", Value: varC("p", kbase.StringType)},
		},
		Head: []kbase.Clause{
			{Entity: varC("a", kbase.StringType), Attr: "sibling_of", Value: varC("q", kbase.StringType)},
		},
	}
	_, err := kbase.CompileRules(schema, decl)
	if err == nil {
		t.Fatal("expected RuleHeadIllFormed for uncovered head variable")
	}
	var headErr *kberrors.RuleHeadIllFormed
	if !errors.As(err, &headErr) {
		t.Fatalf("expected *kberrors.RuleHeadIllFormed, got %T: %v", err, err)
	}
}

func TestCompileRulesRejectsAnyInHead(t *testing.T) {
	schema := familySchema()
	decl := kbase.RuleDecl{
		Name: "bad-head",
		Body: []kbase.Clause{
			{Entity: varC("a", kbase.StringType), Attr: "child_of", Value: kbase.Any{Type: kbase.StringType}},
		},
		Head: []kbase.Clause{
			{Entity: varC("a", kbase.StringType), Attr: "sibling_of", Value: kbase.Any{Type: kbase.StringType}},
		},
	}
	_, err := kbase.CompileRules(schema, decl)
	if err == nil {
		t.Fatal("expected RuleHeadIllFormed for Any in head")
	}
}

func TestCompileRulesRejectsVariableTypeMismatch(t *testing.T) {
	schema := familySchema()
	decl := kbase.RuleDecl{
		Name: "mismatched",
		Body: []kbase.Clause{
			{Entity: varC("a", kbase.StringType), Attr: "child_of", Value: varC("p", kbase.StringType)},
			{Entity: varC("a", kbase.StringType), Attr: "age", Value: varC("p", kbase.IntType)},
		},
		Head: []kbase.Clause{
			{Entity: varC("a", kbase.StringType), Attr: "sibling_of", Value: varC("p", kbase.StringType)},
		},
	}
	_, err := kbase.CompileRules(schema, decl)
	if err == nil {
		t.Fatal("expected a type mismatch error for ?p used as both string and int")
	}
}

func TestCompileRulesCollectsErrorsAcrossDeclarations(t *testing.T) {
	schema := familySchema()
	bad1 := kbase.RuleDecl{
		Name: "bad1",
		Body: []kbase.Clause{{Entity: varC("a", kbase.StringType), Attr: "child_of", Value: varC("p", kbase.StringType)}},
		Head: []kbase.Clause{{Entity: varC("a", kbase.StringType), Attr: "sibling_of", Value: varC("q", kbase.StringType)}},
	}
	bad2 := kbase.RuleDecl{
		Name: "bad2",
		Body: []kbase.Clause{{Entity: varC("x", kbase.StringType), Attr: "child_of", Value: kbase.Any{Type: kbase.StringType}}},
		Head: []kbase.Clause{{Entity: varC("x", kbase.StringType), Attr: "sibling_of", Value: kbase.Any{Type: kbase.StringType}}},
	}
	_, err := kbase.CompileRules(schema, bad1, bad2)
	if err == nil {
		t.Fatal("expected combined error for two bad declarations")
	}
	if got := len(errorsUnwrapJoined(err)); got < 2 {
		t.Fatalf("expected at least 2 joined errors, got %d: %v", got, err)
	}
}

func errorsUnwrapJoined(err error) []error {
	u, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	return u.Unwrap()
}

func TestMatchAndRunProducesSiblingDerivation(t *testing.T) {
	schema := familySchema()
	rule := siblingsRule(t, schema)
	store := newFactStoreWithFacts(t,
		kbase.Fact{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
	)

	fact := kbase.Fact{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")}
	derivations, err := kbase.MatchAndRun(kbase.Now(), store, []kbase.Rule{rule}, fact)
	if err != nil {
		t.Fatalf("MatchAndRun: %v", err)
	}
	if len(derivations) != 2 {
		t.Fatalf("expected 2 derivations (a=brother,b=sister and a=sister,b=brother), got %d: %+v", len(derivations), derivations)
	}
}
