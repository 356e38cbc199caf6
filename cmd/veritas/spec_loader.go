package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"veritas/internal/kbase"
)

// schemaFile is the on-disk YAML shape of a schema declaration, loaded
// by the assert/retract/query/why/refresh commands before wiring an
// Engine.
type schemaFile struct {
	Attributes []struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Cardinality string `yaml:"cardinality"`
	} `yaml:"attributes"`
}

func loadSchema(path string) (*kbase.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	attrs := make([]kbase.Attribute, 0, len(sf.Attributes))
	for _, a := range sf.Attributes {
		dt, err := parseDataType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		card, err := parseCardinality(a.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		attrs = append(attrs, kbase.Attribute{Name: a.Name, DataType: dt, Cardinality: card})
	}
	return kbase.NewSchema(attrs...), nil
}

func parseDataType(s string) (kbase.OrdinalType, error) {
	switch s {
	case "string", "":
		return kbase.StringType, nil
	case "int":
		return kbase.IntType, nil
	case "float":
		return kbase.FloatType, nil
	default:
		return 0, fmt.Errorf("unknown type %q (want string, int, or float)", s)
	}
}

func parseCardinality(s string) (kbase.Cardinality, error) {
	switch s {
	case "many", "":
		return kbase.CardinalityMany, nil
	case "one":
		return kbase.CardinalityOne, nil
	default:
		return 0, fmt.Errorf("unknown cardinality %q (want one or many)", s)
	}
}

// rulesFile is the on-disk YAML shape of a rule set: a list of named
// rules, each a body of triple patterns and a head of triple patterns
// restricted to Const/Var (spec §4.6's head restriction).
type rulesFile struct {
	Rules []struct {
		Name string          `yaml:"name"`
		Body []clausePattern `yaml:"body"`
		Head []clausePattern `yaml:"head"`
	} `yaml:"rules"`
}

type clausePattern struct {
	Entity string `yaml:"entity"`
	Attr   string `yaml:"attr"`
	Value  string `yaml:"value"`
}

func loadRules(path string, schema *kbase.Schema) ([]kbase.RuleDecl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	decls := make([]kbase.RuleDecl, 0, len(rf.Rules))
	for _, r := range rf.Rules {
		body, err := clausesFromPatterns(schema, r.Body)
		if err != nil {
			return nil, fmt.Errorf("rule %q body: %w", r.Name, err)
		}
		head, err := clausesFromPatterns(schema, r.Head)
		if err != nil {
			return nil, fmt.Errorf("rule %q head: %w", r.Name, err)
		}
		decls = append(decls, kbase.RuleDecl{Name: r.Name, Body: body, Head: head})
	}
	return decls, nil
}

func clausesFromPatterns(schema *kbase.Schema, patterns []clausePattern) ([]kbase.Clause, error) {
	clauses := make([]kbase.Clause, 0, len(patterns))
	for _, p := range patterns {
		c, err := parsePattern(schema, p.Entity, p.Attr, p.Value)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}
