// Package kberrors defines the closed error taxonomy raised by the
// knowledge-base core. Each kind is a distinct type, not a string, so
// callers can discriminate with errors.As.
package kberrors

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownAttribute is raised when a clause refers to an attribute the
// schema has never declared.
type UnknownAttribute struct {
	Name string
}

func (e *UnknownAttribute) Error() string {
	return fmt.Sprintf("unknown attribute: %q", e.Name)
}

// TypeMismatch is raised when a variable name is used with more than one
// ordinal type within the same predicate or rule.
type TypeMismatch struct {
	Conflicts map[string][]string // variable name -> observed type names, in order seen
}

func (e *TypeMismatch) Error() string {
	names := make([]string, 0, len(e.Conflicts))
	for n := range e.Conflicts {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("type mismatch:")
	for _, n := range names {
		fmt.Fprintf(&b, " %s has types %s;", n, strings.Join(e.Conflicts[n], ","))
	}
	return strings.TrimSuffix(b.String(), ";")
}

// UnsolvablePredicate is raised when the planner cannot schedule any
// remaining clause of a predicate.
type UnsolvablePredicate struct {
	Remaining int
}

func (e *UnsolvablePredicate) Error() string {
	return fmt.Sprintf("unsolvable predicate: %d clause(s) have more than one free variable per side", e.Remaining)
}

// RuleHeadIllFormed is raised when a rule's head violates the head
// restriction or variable-coverage invariants.
type RuleHeadIllFormed struct {
	Rule    string
	Reasons []string
}

func (e *RuleHeadIllFormed) Error() string {
	return fmt.Sprintf("rule %q has an ill-formed head: %s", e.Rule, strings.Join(e.Reasons, "; "))
}

// CannotRetractDerived is raised when a caller attempts to remove a fact
// that is inferred rather than user-asserted.
type CannotRetractDerived struct {
	Entity string
	Attr   string
}

func (e *CannotRetractDerived) Error() string {
	return fmt.Sprintf("cannot retract derived fact (%s, %s)", e.Entity, e.Attr)
}

// StoreFailure wraps any error propagated from a FactStore adapter.
type StoreFailure struct {
	Cause error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("store failure: %v", e.Cause)
}

func (e *StoreFailure) Unwrap() error {
	return e.Cause
}
