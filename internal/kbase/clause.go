package kbase

import "veritas/internal/kbase/kberrors"

// Clause is a single triple pattern (entity_expr, attr, value_expr).
type Clause struct {
	Entity Expr
	Attr   string
	Value  Expr
}

// VariableTypes reports the (name -> type) obligations this clause
// imposes across both its entity and value expressions.
func (c Clause) VariableTypes() (map[string]OrdinalType, error) {
	entityTypes, err := VariableTypes(c.Entity)
	if err != nil {
		return nil, err
	}
	valueTypes, err := VariableTypes(c.Value)
	if err != nil {
		return nil, err
	}
	return mergeTypeMaps(entityTypes, valueTypes)
}

func mergeTypeMaps(maps ...map[string]OrdinalType) (map[string]OrdinalType, error) {
	out := map[string]OrdinalType{}
	conflicts := map[string][]string{}
	for _, m := range maps {
		for name, t := range m {
			if prior, ok := out[name]; ok {
				if prior != t {
					conflicts[name] = append(conflicts[name], prior.String(), t.String())
				}
				continue
			}
			out[name] = t
		}
	}
	if len(conflicts) > 0 {
		return nil, &kberrors.TypeMismatch{Conflicts: conflicts}
	}
	return out, nil
}

// Substitute narrows both sides of the clause given candidate bindings.
func (c Clause) Substitute(contexts []Context) Clause {
	return Clause{
		Entity: Substitute(c.Entity, contexts),
		Attr:   c.Attr,
		Value:  Substitute(c.Value, contexts),
	}
}

// IsDead reports whether substitution has collapsed either side to an
// empty In, meaning this clause can never match anything.
func (c Clause) IsDead() bool {
	return IsEmptyIn(c.Entity) || IsEmptyIn(c.Value)
}

// AsFact returns the ground fact this clause denotes if both sides are
// Const, or ok=false otherwise.
func (c Clause) AsFact() (Fact, bool) {
	ec, ok := c.Entity.(Const)
	if !ok {
		return Fact{}, false
	}
	vc, ok := c.Value.(Const)
	if !ok {
		return Fact{}, false
	}
	return Fact{Entity: ec.Value.AsString(), Attr: c.Attr, Value: vc.Value}, true
}

// Matches yields every Solution obtained by matching fact against this
// clause, combining the entity-side and value-side micro-contexts.
func (c Clause) Matches(fact Fact) []Solution {
	if fact.Attr != c.Attr {
		return nil
	}
	entityCtxs := Matches(c.Entity, StringValue(fact.Entity))
	if len(entityCtxs) == 0 {
		return nil
	}
	valueCtxs := Matches(c.Value, fact.Value)
	if len(valueCtxs) == 0 {
		return nil
	}
	var out []Solution
	for _, ec := range entityCtxs {
		for _, vc := range valueCtxs {
			merged, ok := mergeContexts(ec, vc)
			if !ok {
				continue
			}
			out = append(out, Solution{Context: merged, Justification: singleFactJustification(fact)})
		}
	}
	return out
}

// satisfiedBy re-checks that the candidate solution's own context still
// satisfies this clause as originally written (pre-substitution), per
// Solution.Merge's third guard.
func (c Clause) satisfiedBy(candidate Solution) bool {
	entityName := FreeVarName(c.Entity)
	valueName := FreeVarName(c.Value)
	if entityName == "" && valueName == "" {
		return true
	}
	ev, eok := valueFor(c.Entity, candidate.Context, entityName)
	if eok && len(Matches(c.Entity, ev)) == 0 {
		return false
	}
	vv, vok := valueFor(c.Value, candidate.Context, valueName)
	if vok && len(Matches(c.Value, vv)) == 0 {
		return false
	}
	return true
}

func valueFor(e Expr, ctx Context, name string) (Ordinal, bool) {
	if name == "" {
		return Ordinal{}, false
	}
	v, ok := ctx[name]
	return v, ok
}

// freeVarCount reports how many distinct free variable names e
// introduces that are not yet present in bound.
func freeVarCount(e Expr, bound map[string]bool) int {
	names := freeVarNames(e)
	n := 0
	for _, name := range names {
		if !bound[name] {
			n++
		}
	}
	return n
}

func freeVarNames(e Expr) []string {
	switch x := e.(type) {
	case Var:
		return []string{x.Name}
	case In:
		return []string{x.Name}
	case Cmp:
		return append(freeVarNames(x.Left), freeVarNames(x.Right)...)
	case And:
		return append(freeVarNames(x.Left), freeVarNames(x.Right)...)
	default:
		return nil
	}
}

// Predicate is an ordered conjunction of clauses with a unified
// variable-type environment.
type Predicate struct {
	Clauses     []Clause
	VarTypes    map[string]OrdinalType
	planned     bool
}

// NewPredicate builds a Predicate from clauses, unifying their variable
// types and failing with TypeMismatch if any name disagrees across
// clauses.
func NewPredicate(schema *Schema, clauses ...Clause) (*Predicate, error) {
	for _, c := range clauses {
		if !schema.Has(c.Attr) {
			return nil, &kberrors.UnknownAttribute{Name: c.Attr}
		}
	}
	maps := make([]map[string]OrdinalType, 0, len(clauses))
	for _, c := range clauses {
		vt, err := c.VariableTypes()
		if err != nil {
			return nil, err
		}
		maps = append(maps, vt)
	}
	unified, err := mergeTypeMaps(maps...)
	if err != nil {
		return nil, err
	}
	return &Predicate{Clauses: append([]Clause(nil), clauses...), VarTypes: unified}, nil
}

// Planned reports whether Plan has already reordered this predicate.
func (p *Predicate) Planned() bool { return p.planned }
