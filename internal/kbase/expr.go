package kbase

import (
	"fmt"

	"veritas/internal/kbase/kberrors"
)

// Expr is the closed tagged sum type of the expression algebra: Const,
// Var, In, Any, Cmp, And. Every operation on Expr is a single switch, not
// a visitor hierarchy, per the algebra's closed-set design.
type Expr interface {
	isExpr()
}

// Const is a literal ordinal.
type Const struct {
	Value Ordinal
}

func (Const) isExpr() {}

// Var is a named variable of a given type. The same name within one
// predicate must always resolve to the same type.
type Var struct {
	Name string
	Type OrdinalType
}

func (Var) isExpr() {}

// In constrains a variable to a finite set of candidate ordinals.
type In struct {
	Name   string
	Values []Ordinal
	Type   OrdinalType
}

func (In) isExpr() {}

// Any is the anonymous wildcard: matches anything, binds nothing.
type Any struct {
	Type OrdinalType
}

func (Any) isExpr() {}

// CmpOp names one of the four ordered comparison operators.
type CmpOp int

const (
	Lt CmpOp = iota
	Le
	Gt
	Ge
)

func (op CmpOp) String() string {
	switch op {
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "?"
	}
}

func (op CmpOp) holds(a, b Ordinal) bool {
	switch op {
	case Lt:
		return a.Less(b)
	case Le:
		return a.Less(b) || a.Equal(b)
	case Gt:
		return b.Less(a)
	case Ge:
		return b.Less(a) || a.Equal(b)
	default:
		return false
	}
}

// Cmp is a comparison between two Var|Const operands of matching type.
type Cmp struct {
	Op    CmpOp
	Left  Expr
	Right Expr
}

func (Cmp) isExpr() {}

// And conjoins two value-side constraints, typically two Cmp bounding the
// same variable (e.g. 0 <= ?x <= 100).
type And struct {
	Left  Expr
	Right Expr
}

func (And) isExpr() {}

// VariableTypes collects the (name -> type) obligations an expression
// imposes, reporting every conflict together via TypeMismatch.
func VariableTypes(e Expr) (map[string]OrdinalType, error) {
	vt, conflicts := variableTypes(e, map[string][]OrdinalType{})
	if len(conflicts) > 0 {
		out := make(map[string][]string, len(conflicts))
		for name, types := range conflicts {
			for _, t := range types {
				out[name] = append(out[name], t.String())
			}
		}
		return nil, &kberrors.TypeMismatch{Conflicts: out}
	}
	return vt, nil
}

func variableTypes(e Expr, seen map[string][]OrdinalType) (map[string]OrdinalType, map[string][]OrdinalType) {
	record := func(name string, t OrdinalType) {
		for _, prior := range seen[name] {
			if prior == t {
				return
			}
		}
		seen[name] = append(seen[name], t)
	}
	switch x := e.(type) {
	case Const:
	case Var:
		record(x.Name, x.Type)
	case In:
		record(x.Name, x.Type)
	case Any:
	case Cmp:
		variableTypes(x.Left, seen)
		variableTypes(x.Right, seen)
	case And:
		variableTypes(x.Left, seen)
		variableTypes(x.Right, seen)
	}
	out := map[string]OrdinalType{}
	conflicts := map[string][]OrdinalType{}
	for name, types := range seen {
		if len(types) > 1 {
			conflicts[name] = types
		} else if len(types) == 1 {
			out[name] = types[0]
		}
	}
	return out, conflicts
}

// Substitute narrows e given a batch of candidate bindings. See the
// expression-algebra section for the collapsing rules each variant
// follows.
func Substitute(e Expr, contexts []Context) Expr {
	switch x := e.(type) {
	case Const:
		return x
	case Any:
		return x
	case Var:
		values, ok := pluck(contexts, x.Name)
		if !ok {
			return x
		}
		if len(values) == 1 {
			return Const{Value: values[0]}
		}
		return In{Name: x.Name, Values: values, Type: x.Type}
	case In:
		values, ok := pluck(contexts, x.Name)
		if !ok {
			return x
		}
		narrowed := intersect(x.Values, values)
		if len(narrowed) == 1 {
			return Const{Value: narrowed[0]}
		}
		return In{Name: x.Name, Values: narrowed, Type: x.Type}
	case Cmp:
		return substituteCmp(x, contexts)
	case And:
		return And{Left: Substitute(x.Left, contexts), Right: Substitute(x.Right, contexts)}
	default:
		panic(fmt.Sprintf("unreachable expr variant %T", e))
	}
}

// substituteCmp narrows a comparison's operands. When one side resolves
// to an In set, the set is filtered down to the values that keep the
// comparison satisfiable against the other (already-ground) side — this
// achieves the same narrowing the hidden-variable rewrite in the design
// notes describes, without needing to mint a fresh variable name, since
// In already carries its candidate set eagerly rather than lazily.
func substituteCmp(c Cmp, contexts []Context) Expr {
	left := Substitute(c.Left, contexts)
	right := Substitute(c.Right, contexts)

	if lc, ok := left.(Const); ok {
		if ri, ok := right.(In); ok {
			ri.Values = filterOrdinals(ri.Values, func(v Ordinal) bool { return c.Op.holds(lc.Value, v) })
			return Cmp{Op: c.Op, Left: lc, Right: collapseIn(ri)}
		}
	}
	if rc, ok := right.(Const); ok {
		if li, ok := left.(In); ok {
			li.Values = filterOrdinals(li.Values, func(v Ordinal) bool { return c.Op.holds(v, rc.Value) })
			return Cmp{Op: c.Op, Left: collapseIn(li), Right: rc}
		}
	}
	return Cmp{Op: c.Op, Left: left, Right: right}
}

func collapseIn(i In) Expr {
	if len(i.Values) == 1 {
		return Const{Value: i.Values[0]}
	}
	return i
}

func intersect(a, b []Ordinal) []Ordinal {
	set := make(map[Ordinal]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []Ordinal
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func filterOrdinals(vs []Ordinal, keep func(Ordinal) bool) []Ordinal {
	var out []Ordinal
	for _, v := range vs {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Matches yields every micro-binding that makes v satisfy e. A nil/empty
// result means no match.
func Matches(e Expr, v Ordinal) []Context {
	switch x := e.(type) {
	case Const:
		if x.Value.Equal(v) {
			return []Context{{}}
		}
		return nil
	case Var:
		return []Context{{x.Name: v}}
	case In:
		for _, candidate := range x.Values {
			if candidate.Equal(v) {
				return []Context{{x.Name: v}}
			}
		}
		return nil
	case Any:
		return []Context{{}}
	case Cmp:
		return matchesCmp(x, v)
	case And:
		return matchesAnd(x, v)
	default:
		panic(fmt.Sprintf("unreachable expr variant %T", e))
	}
}

// matchesCmp binds whichever operand(s) are Var to v (the matched fact
// value), then checks the comparison against whatever the other operand
// resolves to. The Var<Var case (both operands unresolved) is permitted
// by binding both to v, per the algebra's note that both sides may bind
// simultaneously when both are variables.
func matchesCmp(c Cmp, v Ordinal) []Context {
	ctx := Context{}
	left := operandValue(c.Left, v, ctx)
	right := operandValue(c.Right, v, ctx)
	if left == nil || right == nil {
		// An operand is neither Const nor Var (an In or Any, say), so it
		// cannot be resolved against v: defer by returning the partial
		// binding so the evaluator re-checks once both sides are ground
		// (see Solution.merge's re-application).
		return []Context{ctx}
	}
	if !c.Op.holds(*left, *right) {
		return nil
	}
	return []Context{ctx}
}

// operandValue resolves a Cmp operand to a concrete ordinal given the
// value being matched, recording any Var binding into ctx.
func operandValue(e Expr, v Ordinal, ctx Context) *Ordinal {
	switch x := e.(type) {
	case Const:
		val := x.Value
		return &val
	case Var:
		if existing, ok := ctx[x.Name]; ok {
			return &existing
		}
		ctx[x.Name] = v
		return &v
	default:
		return nil
	}
}

func matchesAnd(a And, v Ordinal) []Context {
	var out []Context
	for _, l := range Matches(a.Left, v) {
		for _, r := range Matches(a.Right, v) {
			if merged, ok := mergeContexts(l, r); ok {
				out = append(out, merged)
			}
		}
	}
	return out
}

// IsEmptyIn reports whether e is an In expression whose candidate set has
// been narrowed to empty, signaling a dead clause that can never match.
func IsEmptyIn(e Expr) bool {
	i, ok := e.(In)
	return ok && len(i.Values) == 0
}

// FreeVarName returns the variable name of a Var or In, or "" for every
// other variant: Const and Any bind no name, and Cmp and And return ""
// even when they mention a single variable.
func FreeVarName(e Expr) string {
	switch x := e.(type) {
	case Var:
		return x.Name
	case In:
		return x.Name
	default:
		return ""
	}
}
