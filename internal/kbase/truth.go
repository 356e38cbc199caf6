package kbase

// truth.go implements the justification-graph bookkeeping spec §4.7
// describes: turning a batch of Derivation values into JustRow writes,
// and walking the reverse index to find derived facts whose support has
// dropped to zero so they can be garbage-collected or cascaded into a
// retraction.

// justRowsFor converts derivations into the JustRow shape the store
// persists, deduplicating on the same (rule_id, justification_hash,
// derived_fact_hash) key the store itself dedupes on, so a saturation
// pass that rediscovers the same derivation twice in one transaction
// only submits it once.
func justRowsFor(derivations []Derivation) []JustRow {
	seen := map[JustDeleteKey]bool{}
	var out []JustRow
	for _, d := range derivations {
		jh := JustificationHash(d.Justification)
		fh := DerivedFactHash(d.Fact)
		key := JustDeleteKey{RuleID: d.RuleID, JustificationHash: jh, DerivedFactHash: fh}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, JustRow{
			RuleID:            d.RuleID,
			JustificationHash: jh,
			DerivedFact:       d.Fact,
			DerivedFactHash:   fh,
		})
	}
	return out
}

// gcOrphans walks the justification rows that retraction is about to
// delete and determines which derived facts lose their last supporting
// row, cascading: a derived fact orphaned by this pass may itself have
// been relied upon as a body fact for further derivations, so orphaned
// facts are folded back into the same retraction sweep by the caller
// (engine.go's retract) until the frontier is empty.
//
// toDelete is the set of justification keys being removed in this step.
// store.CountJustificationsFor still reflects pre-deletion counts, so
// gcOrphans subtracts the distinct rows about to be deleted that target
// the same derived fact from the store's count.
func gcOrphans(store FactStore, toDelete []JustRow) ([]Fact, error) {
	seen := map[JustDeleteKey]bool{}
	deletedPerFact := map[Hash128]int{}
	factByHash := map[Hash128]Fact{}
	for _, row := range toDelete {
		key := JustDeleteKey{RuleID: row.RuleID, JustificationHash: row.JustificationHash, DerivedFactHash: row.DerivedFactHash}
		if seen[key] {
			continue
		}
		seen[key] = true
		deletedPerFact[row.DerivedFactHash]++
		factByHash[row.DerivedFactHash] = row.DerivedFact
	}

	var orphaned []Fact
	for hash, removedCount := range deletedPerFact {
		total, err := store.CountJustificationsFor(hash)
		if err != nil {
			return nil, err
		}
		if total-removedCount <= 0 {
			orphaned = append(orphaned, factByHash[hash])
		}
	}
	return orphaned, nil
}
