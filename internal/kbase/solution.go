package kbase

// Solution is a variable binding together with the set of facts that
// justify it. The empty solution is the identity element for join.
type Solution struct {
	Context       Context
	Justification map[Fact]struct{}
}

// EmptySolution returns the identity solution: no bindings, no support.
func EmptySolution() Solution {
	return Solution{Context: Context{}, Justification: map[Fact]struct{}{}}
}

func singleFactJustification(f Fact) map[Fact]struct{} {
	return map[Fact]struct{}{f: {}}
}

func justificationUnion(a, b map[Fact]struct{}) map[Fact]struct{} {
	out := make(map[Fact]struct{}, len(a)+len(b))
	for f := range a {
		out[f] = struct{}{}
	}
	for f := range b {
		out[f] = struct{}{}
	}
	return out
}

func justificationsDisjoint(a, b map[Fact]struct{}) bool {
	small, big := a, b
	if len(small) > len(big) {
		small, big = big, small
	}
	for f := range small {
		if _, ok := big[f]; ok {
			return false
		}
	}
	return true
}

// Merge yields every solution obtained by joining s with one candidate
// drawn from others, re-checking clauseBeforeSubstitution against the
// candidate's own context so a constraint the planner substituted away
// is re-applied. It implements spec's three merge conditions:
//  1. the two justification sets must be disjoint (forbids joining a
//     solution with itself, or with a candidate built from a fact it
//     already uses); the check is skipped when s is the empty solution;
//  2. context union must be commutative — every shared key must agree;
//  3. the candidate must still satisfy clauseBeforeSubstitution under its
//     own (pre-join) context.
func (s Solution) Merge(others []Solution, clauseBeforeSubstitution Clause) []Solution {
	selfIsEmpty := len(s.Context) == 0 && len(s.Justification) == 0
	var out []Solution
	for _, other := range others {
		if !selfIsEmpty && !justificationsDisjoint(s.Justification, other.Justification) {
			continue
		}
		merged, ok := mergeContexts(s.Context, other.Context)
		if !ok {
			continue
		}
		if !clauseBeforeSubstitution.satisfiedBy(other) {
			continue
		}
		out = append(out, Solution{
			Context:       merged,
			Justification: justificationUnion(s.Justification, other.Justification),
		})
	}
	return out
}
