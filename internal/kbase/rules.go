package kbase

import (
	"errors"
	"fmt"

	"veritas/internal/kbase/kberrors"
)

// Rule is a compiled body => head inference rule. Every variable in Head
// must appear in Body; Head contains only Const and Var (no Any, In, or
// comparisons). RuleID is a stable content hash of the rule's canonical
// form, used as a foreign key throughout the justification graph.
type Rule struct {
	Name   string
	Body   *Predicate
	Head   *Predicate
	RuleID Hash128
}

// RuleDecl is the uncompiled declaration a caller supplies: a name plus
// the raw body/head clauses, before type unification and planning.
type RuleDecl struct {
	Name string
	Body []Clause
	Head []Clause
}

// CompileRules builds and validates a set of rules together, collecting
// every error across every declaration before returning (spec §4.6:
// "errors are collected and reported together").
func CompileRules(schema *Schema, decls ...RuleDecl) ([]Rule, error) {
	var rules []Rule
	var errs []error
	for _, d := range decls {
		r, err := compileRule(schema, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}

func compileRule(schema *Schema, d RuleDecl) (Rule, error) {
	body, err := NewPredicate(schema, d.Body...)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: body: %w", d.Name, err)
	}
	head, err := NewPredicate(schema, d.Head...)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: head: %w", d.Name, err)
	}

	var reasons []string
	for name, headType := range head.VarTypes {
		bodyType, ok := body.VarTypes[name]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("head variable %q does not appear in body", name))
			continue
		}
		if bodyType != headType {
			reasons = append(reasons, fmt.Sprintf("variable %q has type %s in body but %s in head", name, bodyType, headType))
		}
	}
	for _, c := range head.Clauses {
		if reason, bad := headRestrictionViolation(c); bad {
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) > 0 {
		return Rule{}, &kberrors.RuleHeadIllFormed{Rule: d.Name, Reasons: reasons}
	}

	plannedBody, err := Plan(body, []Context{{}})
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", d.Name, err)
	}

	r := Rule{Name: d.Name, Body: plannedBody, Head: head}
	r.RuleID = HashRule(r)
	return r, nil
}

// headRestrictionViolation reports whether a head clause violates spec
// §3's rule invariant (b): only Const and Var are allowed in the head, no
// Any, In, or comparisons.
func headRestrictionViolation(c Clause) (string, bool) {
	for _, side := range []struct {
		name string
		e    Expr
	}{{"entity", c.Entity}, {"value", c.Value}} {
		switch side.e.(type) {
		case Const, Var:
		default:
			return fmt.Sprintf("head clause (%s) uses a disallowed %T on the %s side", c.Attr, side.e, side.name), true
		}
	}
	return "", false
}

// specializedRule is a rule whose body has been partially solved by one
// fact match: the matched clause is removed from the body, and the partial
// solution carries the micro-justification of the fact that matched. The
// matched clause is removed whatever its free variables; it is never
// re-inserted into the remaining body as a constraint.
type specializedRule struct {
	rule     Rule
	body     []Clause
	solution Solution
}

// MatchFact produces, for each body clause of r that matches fact, one
// specialized rule whose remaining body is the other clauses (with the
// match's bindings substituted in) and whose running solution already
// carries {fact} as justification.
func MatchFact(r Rule, fact Fact) []specializedRule {
	var out []specializedRule
	for i, c := range r.Body.Clauses {
		if c.Attr != fact.Attr {
			continue
		}
		for _, microSol := range c.Matches(fact) {
			rest := make([]Clause, 0, len(r.Body.Clauses)-1)
			rest = append(rest, r.Body.Clauses[:i]...)
			rest = append(rest, r.Body.Clauses[i+1:]...)
			ctx := []Context{microSol.Context}
			substituted := make([]Clause, len(rest))
			for j, rc := range rest {
				substituted[j] = rc.Substitute(ctx)
			}
			out = append(out, specializedRule{
				rule: r,
				body: substituted,
				solution: Solution{
					Context:       microSol.Context,
					Justification: singleFactJustification(fact),
				},
			})
		}
	}
	return out
}

// Run evaluates a specialized rule's remaining body against the store,
// starting from its seeded solution, then substitutes each final
// solution's context into the rule's head to produce derived facts.
// Facts whose head clauses cannot be fully grounded after substitution
// are rejected (Open Question 1: strict, not silently dropped).
func (sr specializedRule) Run(view AsOf, store FactStore) ([]Derivation, error) {
	plan, err := Plan(&Predicate{Clauses: sr.body, VarTypes: sr.rule.Body.VarTypes}, []Context{sr.solution.Context})
	if err != nil {
		return nil, err
	}
	sols, err := Evaluate(view, store, plan, []Solution{sr.solution})
	if err != nil {
		return nil, err
	}
	var out []Derivation
	for _, sol := range sols {
		facts, err := groundHead(sr.rule.Head, sol.Context)
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			out = append(out, Derivation{
				RuleID:        sr.rule.RuleID,
				Fact:          f,
				Justification: sol.Justification,
			})
		}
	}
	return out, nil
}

// groundHead substitutes ctx into every head clause, failing strictly if
// any clause cannot be fully grounded (per Open Question 1).
func groundHead(head *Predicate, ctx Context) ([]Fact, error) {
	facts := make([]Fact, 0, len(head.Clauses))
	for _, c := range head.Clauses {
		grounded := c.Substitute([]Context{ctx})
		f, ok := grounded.AsFact()
		if !ok {
			return nil, &kberrors.RuleHeadIllFormed{
				Rule:    "<derivation>",
				Reasons: []string{fmt.Sprintf("head clause on attribute %q could not be fully grounded from the matched solution", c.Attr)},
			}
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// Derivation is one fact a rule produced from one set of supporting
// facts, ready to become a JustRow.
type Derivation struct {
	RuleID        Hash128
	Fact          Fact
	Justification map[Fact]struct{}
}

// MatchAndRun runs every rule in rules against fact, returning every
// derivation any rule produces by treating fact as a new source.
func MatchAndRun(view AsOf, store FactStore, rules []Rule, fact Fact) ([]Derivation, error) {
	var out []Derivation
	for _, r := range rules {
		for _, sr := range MatchFact(r, fact) {
			ds, err := sr.Run(view, store)
			if err != nil {
				return nil, err
			}
			out = append(out, ds...)
		}
	}
	return out, nil
}
