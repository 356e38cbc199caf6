package main

import (
	"testing"

	"veritas/internal/kbase"
)

func testPatternSchema() *kbase.Schema {
	return kbase.NewSchema(
		kbase.Attribute{Name: "age", DataType: kbase.IntType, Cardinality: kbase.CardinalityOne},
		kbase.Attribute{Name: "child_of", DataType: kbase.StringType, Cardinality: kbase.CardinalityMany},
	)
}

func TestParseValueExprVariants(t *testing.T) {
	schema := testPatternSchema()

	e, err := parseValueExpr(schema, "age", "_")
	if err != nil || e == nil {
		t.Fatalf("wildcard: %v", err)
	}
	if _, ok := e.(kbase.Any); !ok {
		t.Fatalf("expected Any, got %T", e)
	}

	e, err = parseValueExpr(schema, "age", "?X")
	if err != nil {
		t.Fatalf("var: %v", err)
	}
	v, ok := e.(kbase.Var)
	if !ok || v.Name != "X" {
		t.Fatalf("expected Var X, got %#v", e)
	}

	e, err = parseValueExpr(schema, "age", "30")
	if err != nil {
		t.Fatalf("const: %v", err)
	}
	c, ok := e.(kbase.Const)
	if !ok || c.Value.AsInt() != 30 {
		t.Fatalf("expected Const(30), got %#v", e)
	}
}

func TestParseValueExprRejectsBadInt(t *testing.T) {
	schema := testPatternSchema()
	if _, err := parseValueExpr(schema, "age", "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric age value")
	}
}

func TestParseFactRejectsPatterns(t *testing.T) {
	schema := testPatternSchema()
	if _, err := parseFact(schema, "?x", "child_of", "father"); err == nil {
		t.Fatal("expected error for variable entity in parseFact")
	}
	if _, err := parseFact(schema, "brother", "child_of", "_"); err == nil {
		t.Fatal("expected error for wildcard value in parseFact")
	}
}

func TestOrdinalStringRoundTrip(t *testing.T) {
	if got := ordinalString(kbase.StringValue("father")); got != "father" {
		t.Fatalf("got %q", got)
	}
	if got := ordinalString(kbase.IntValue(42)); got != "42" {
		t.Fatalf("got %q", got)
	}
}
