package kbase

import "veritas/internal/kbase/kberrors"

const wildcardWeight = 10
const namedWeight = 1

// Plan orders the clauses of p to minimize fanout given the bindings
// already known from contexts, following the deterministic greedy
// algorithm: repeatedly substitute with the known bindings, pick the
// lowest-scoring clause that has at most one free variable per side, and
// repeat until every clause is scheduled. It returns UnsolvablePredicate
// if no remaining clause is ever ready.
//
// Plan is pure: it never touches the store.
func Plan(p *Predicate, contexts []Context) (*Predicate, error) {
	remaining := append([]Clause(nil), p.Clauses...)
	bound := map[string]bool{}
	for name, v := range firstContextOrEmpty(contexts) {
		_ = v
		bound[name] = true
	}

	var ordered []Clause
	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1
		bestDead := false
		for i, c := range remaining {
			sub := c.Substitute(contexts)
			if sub.IsDead() {
				// A dead clause can be scheduled immediately: it costs
				// nothing to evaluate (it short-circuits to zero
				// solutions) and doing so early avoids wasted lookups
				// on later clauses.
				bestIdx = i
				bestDead = true
				break
			}
			leftSlots := sideSlots(c.Entity, bound)
			rightSlots := sideSlots(c.Value, bound)
			if len(leftSlots) > 1 || len(rightSlots) > 1 {
				continue
			}
			score := sumWeights(leftSlots) + sumWeights(rightSlots)
			if bestIdx == -1 || score < bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			return nil, &kberrors.UnsolvablePredicate{Remaining: len(remaining)}
		}
		chosen := remaining[bestIdx]
		ordered = append(ordered, chosen)
		if !bestDead {
			for _, name := range append(freeVarNamesUnbound(chosen.Entity, bound), freeVarNamesUnbound(chosen.Value, bound)...) {
				bound[name] = true
			}
		}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return &Predicate{Clauses: ordered, VarTypes: p.VarTypes, planned: true}, nil
}

func firstContextOrEmpty(contexts []Context) Context {
	if len(contexts) == 0 {
		return Context{}
	}
	// Bound names are the same across every context by construction
	// (each Sols entry binds the same variable set); the first is
	// representative.
	return contexts[0]
}

func freeVarNamesUnbound(e Expr, bound map[string]bool) []string {
	var out []string
	for _, name := range freeVarNames(e) {
		if !bound[name] {
			out = append(out, name)
		}
	}
	return dedupStrings(out)
}

func dedupStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// sideSlots lists the weight of each distinct still-unbound variable on
// one side of a clause (entity or value). A name counts once however often
// it recurs on that side, so And{?x, ?x >= 50} carries a single slot; Cmp
// and And carry two only when they mention two distinct unbound variables
// (or an Any).
func sideSlots(e Expr, bound map[string]bool) []int {
	seen := make(map[string]bool, len(bound))
	for name, b := range bound {
		seen[name] = b
	}
	return unseenSlots(e, seen)
}

// unseenSlots walks e for sideSlots; seen holds the bound names plus the
// names already counted on this side.
func unseenSlots(e Expr, seen map[string]bool) []int {
	switch x := e.(type) {
	case Const:
		return nil
	case Var:
		if seen[x.Name] {
			return nil
		}
		seen[x.Name] = true
		return []int{namedWeight}
	case In:
		if seen[x.Name] {
			return nil
		}
		seen[x.Name] = true
		return []int{namedWeight}
	case Any:
		return []int{wildcardWeight}
	case Cmp:
		return append(unseenSlots(x.Left, seen), unseenSlots(x.Right, seen)...)
	case And:
		return append(unseenSlots(x.Left, seen), unseenSlots(x.Right, seen)...)
	default:
		return nil
	}
}

func sumWeights(slots []int) int {
	sum := 0
	for _, s := range slots {
		sum += s
	}
	return sum
}
