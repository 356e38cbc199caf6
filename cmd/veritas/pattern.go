package main

import (
	"fmt"
	"strconv"
	"strings"

	"veritas/internal/kbase"
)

// parseOrdinal converts a raw CLI string into an Ordinal of the type
// schema declares for attr, failing with a TypeMismatch-flavored error
// if it cannot be parsed as that type.
func parseOrdinal(schema *kbase.Schema, attr, raw string) (kbase.Ordinal, error) {
	decl, err := schema.Get(attr)
	if err != nil {
		return kbase.Ordinal{}, err
	}
	switch decl.DataType {
	case kbase.StringType:
		return kbase.StringValue(raw), nil
	case kbase.IntType:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return kbase.Ordinal{}, fmt.Errorf("attribute %q wants an int value, got %q", attr, raw)
		}
		return kbase.IntValue(n), nil
	case kbase.FloatType:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return kbase.Ordinal{}, fmt.Errorf("attribute %q wants a float value, got %q", attr, raw)
		}
		return kbase.FloatValue(f), nil
	default:
		return kbase.Ordinal{}, fmt.Errorf("attribute %q has unknown data type", attr)
	}
}

// parseValueExpr turns a raw query-pattern token into an Expr: "_" is
// the wildcard Any, a leading "?" names a Var, anything else is a
// literal Const parsed against attr's declared type.
func parseValueExpr(schema *kbase.Schema, attr, raw string) (kbase.Expr, error) {
	decl, err := schema.Get(attr)
	if err != nil {
		return nil, err
	}
	switch {
	case raw == "_":
		return kbase.Any{Type: decl.DataType}, nil
	case strings.HasPrefix(raw, "?"):
		return kbase.Var{Name: strings.TrimPrefix(raw, "?"), Type: decl.DataType}, nil
	default:
		v, err := parseOrdinal(schema, attr, raw)
		if err != nil {
			return nil, err
		}
		return kbase.Const{Value: v}, nil
	}
}

// parseEntityExpr mirrors parseValueExpr but for the entity side, which
// is always a string ordinal regardless of the clause's attribute type.
func parseEntityExpr(raw string) kbase.Expr {
	switch {
	case raw == "_":
		return kbase.Any{Type: kbase.StringType}
	case strings.HasPrefix(raw, "?"):
		return kbase.Var{Name: strings.TrimPrefix(raw, "?"), Type: kbase.StringType}
	default:
		return kbase.Const{Value: kbase.StringValue(raw)}
	}
}

// parsePattern parses the three positional CLI tokens (entity, attr,
// value) of a triple pattern into a Clause.
func parsePattern(schema *kbase.Schema, entity, attr, value string) (kbase.Clause, error) {
	if !schema.Has(attr) {
		return kbase.Clause{}, fmt.Errorf("unknown attribute %q", attr)
	}
	valueExpr, err := parseValueExpr(schema, attr, value)
	if err != nil {
		return kbase.Clause{}, err
	}
	return kbase.Clause{Entity: parseEntityExpr(entity), Attr: attr, Value: valueExpr}, nil
}

// ordinalString renders an Ordinal for CLI output, choosing the field
// that matches its declared type.
func ordinalString(v kbase.Ordinal) string {
	switch v.Type() {
	case kbase.IntType:
		return strconv.FormatInt(v.AsInt(), 10)
	case kbase.FloatType:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	default:
		return v.AsString()
	}
}

// parseFact parses a ground (entity, attr, value) triple into a Fact,
// rejecting variables or wildcards - assert/retract only accept
// literals.
func parseFact(schema *kbase.Schema, entity, attr, value string) (kbase.Fact, error) {
	if strings.HasPrefix(entity, "?") || entity == "_" {
		return kbase.Fact{}, fmt.Errorf("entity %q must be a literal, not a pattern", entity)
	}
	if strings.HasPrefix(value, "?") || value == "_" {
		return kbase.Fact{}, fmt.Errorf("value %q must be a literal, not a pattern", value)
	}
	v, err := parseOrdinal(schema, attr, value)
	if err != nil {
		return kbase.Fact{}, err
	}
	return kbase.Fact{Entity: entity, Attr: attr, Value: v}, nil
}
