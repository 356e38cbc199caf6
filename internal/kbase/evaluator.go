package kbase

// Evaluate runs a planned predicate against store, starting from sols
// (the caller passes []Solution{EmptySolution()} for a fresh query). It
// follows spec §4.5's solve() recursion: peel the first clause, look up
// candidates for its substituted form, re-match against the
// pre-substitution clause, then merge into every current solution.
//
// p must already be planned (Plan must have been called); Evaluate does
// not reorder clauses itself.
func Evaluate(view AsOf, store FactStore, p *Predicate, sols []Solution) ([]Solution, error) {
	return evaluate(view, store, p.Clauses, sols)
}

func evaluate(view AsOf, store FactStore, clauses []Clause, sols []Solution) ([]Solution, error) {
	if len(clauses) == 0 || len(sols) == 0 {
		return sols, nil
	}
	c := clauses[0]
	rest := clauses[1:]

	contexts := make([]Context, 0, len(sols))
	for _, s := range sols {
		contexts = append(contexts, s.Context)
	}
	substituted := c.Substitute(contexts)
	if substituted.IsDead() {
		// Open question 2: an empty In short-circuits the whole clause
		// (and therefore this branch of solve) to zero solutions.
		return nil, nil
	}

	candidates, err := store.Lookup(view, substituted)
	if err != nil {
		return nil, err
	}

	var local []Solution
	for _, fact := range candidates {
		local = append(local, c.Matches(fact)...)
	}

	var merged []Solution
	for _, sol := range sols {
		merged = append(merged, sol.Merge(local, c)...)
	}

	return evaluate(view, store, rest, merged)
}
