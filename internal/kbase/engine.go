package kbase

import (
	"sort"
	"strings"

	"veritas/internal/kbase/kberrors"
)

// canonicalContext renders a Context as a sorted "name=ordinal" listing so
// two Contexts with the same bindings produce the same string regardless of
// map iteration order.
func canonicalContext(ctx Context) string {
	names := make([]string, 0, len(ctx))
	for name := range ctx {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+canonicalOrdinal(ctx[name]))
	}
	return strings.Join(parts, ",")
}

// Engine is the public API surface (spec §6.2): a schema, a compiled rule
// set, and a FactStore, wired together. Schema and Rules are effectively
// immutable for the engine's lifetime and read without locking; the store
// is the sole mutable resource and owns its own concurrency.
type Engine struct {
	Schema *Schema
	Rules  []Rule
	Store  FactStore
}

// NewEngine wires a schema, compiled rules, and a store into an Engine.
func NewEngine(schema *Schema, rules []Rule, store FactStore) *Engine {
	return &Engine{Schema: schema, Rules: rules, Store: store}
}

// Add is a convenience wrapper for BulkAdd([fact]).
func (e *Engine) Add(fact Fact) (TxID, error) {
	return e.BulkAdd([]Fact{fact})
}

// Remove is a convenience wrapper for BulkRemove({fact}).
func (e *Engine) Remove(fact Fact) error {
	return e.BulkRemove([]Fact{fact})
}

// BulkAdd supersedes cardinality-one conflicts, appends the given facts as
// base facts, drives saturation to a fixed point, and commits. It returns
// the transaction id. An already-valid fact in facts is deduplicated (no
// new row, no re-seeded saturation), following the lookup-before-insert
// behavior recovered from the original source.
func (e *Engine) BulkAdd(facts []Fact) (tx TxID, err error) {
	tx, err = e.Store.Begin()
	if err != nil {
		return "", &kberrors.StoreFailure{Cause: err}
	}
	defer func() {
		if err != nil {
			e.Store.Rollback(tx)
		}
	}()

	if err = e.supersede(tx, facts); err != nil {
		return "", err
	}

	var seed []Fact
	var writes []WriteFact
	for _, f := range facts {
		_, exists, _, ferr := e.Store.FactInfo(f)
		if ferr != nil {
			err = &kberrors.StoreFailure{Cause: ferr}
			return "", err
		}
		if exists {
			continue
		}
		writes = append(writes, WriteFact{Fact: f, IsInferred: false})
		seed = append(seed, f)
	}
	if len(writes) > 0 {
		if _, err = e.Store.Append(tx, writes); err != nil {
			err = &kberrors.StoreFailure{Cause: err}
			return "", err
		}
	}

	if err = e.saturate(tx, seed); err != nil {
		return "", err
	}

	if err = e.Store.Commit(tx); err != nil {
		err = &kberrors.StoreFailure{Cause: err}
		return "", err
	}
	return tx, nil
}

// supersede implements spec §4.7 step 2: for each fact in facts whose
// attribute is cardinality=one, find the currently-valid fact for that
// (entity, attr) and retract it as part of the same transaction, unless
// it already holds the value being asserted.
func (e *Engine) supersede(tx TxID, facts []Fact) error {
	var toRetract []Fact
	for _, f := range facts {
		attr, aerr := e.Schema.Get(f.Attr)
		if aerr != nil {
			return aerr
		}
		if attr.Cardinality != CardinalityOne {
			continue
		}
		current, found, err := e.currentValue(f.Entity, f.Attr)
		if err != nil {
			return &kberrors.StoreFailure{Cause: err}
		}
		if found && !current.Equal(f) {
			toRetract = append(toRetract, current)
		}
	}
	if len(toRetract) == 0 {
		return nil
	}
	return e.retract(tx, toRetract)
}

// currentValue looks up the single valid-now fact for (entity, attr), if
// any. It uses Any, typed by the attribute's declared type, as the value
// side so that whatever value is currently held matches, and keeps only
// results for entity, since a store's Lookup may return other entities'
// facts for the same attribute.
func (e *Engine) currentValue(entity, attr string) (Fact, bool, error) {
	attrDecl, err := e.Schema.Get(attr)
	if err != nil {
		return Fact{}, false, err
	}
	clause := Clause{Entity: Const{Value: StringValue(entity)}, Attr: attr, Value: Any{Type: attrDecl.DataType}}
	facts, err := e.Store.Lookup(Now(), clause)
	if err != nil {
		return Fact{}, false, err
	}
	for _, f := range facts {
		if f.Entity == entity && f.Attr == attr {
			return f, true, nil
		}
	}
	return Fact{}, false, nil
}

// saturate drives forward-chaining to a fixed point starting from seed,
// appending every newly-derived fact as is_inferred=true and recording
// its justification row. Termination relies on the derived-fact set being
// finite and deduplicated (spec §4.6).
func (e *Engine) saturate(tx TxID, seed []Fact) error {
	for len(seed) > 0 {
		var derivations []Derivation
		for _, f := range seed {
			ds, err := MatchAndRun(Now(), e.Store, e.Rules, f)
			if err != nil {
				return err
			}
			derivations = append(derivations, ds...)
		}
		// Append any brand-new derived facts before their justification
		// rows, since an adapter's justification row references the
		// derived fact's store id.
		var next []Fact
		emitted := map[Fact]bool{}
		for _, d := range derivations {
			if emitted[d.Fact] {
				continue
			}
			emitted[d.Fact] = true
			_, exists, _, err := e.Store.FactInfo(d.Fact)
			if err != nil {
				return &kberrors.StoreFailure{Cause: err}
			}
			if exists {
				continue
			}
			if _, err := e.Store.Append(tx, []WriteFact{{Fact: d.Fact, IsInferred: true}}); err != nil {
				return &kberrors.StoreFailure{Cause: err}
			}
			next = append(next, d.Fact)
		}

		rows := justRowsFor(derivations)
		if len(rows) > 0 {
			if err := e.Store.AppendJustifications(tx, rows); err != nil {
				return &kberrors.StoreFailure{Cause: err}
			}
		}

		seed = next
	}
	return nil
}

// BulkRemove retracts a set of user-asserted facts, rejecting the call
// entirely (CannotRetractDerived) if any of them is inferred, and
// cascades the retraction to any derived fact whose last justification
// the removal eliminates.
func (e *Engine) BulkRemove(facts []Fact) (err error) {
	for _, f := range facts {
		_, exists, inferred, ferr := e.Store.FactInfo(f)
		if ferr != nil {
			return &kberrors.StoreFailure{Cause: ferr}
		}
		if exists && inferred {
			return &kberrors.CannotRetractDerived{Entity: f.Entity, Attr: f.Attr}
		}
	}

	tx, err := e.Store.Begin()
	if err != nil {
		return &kberrors.StoreFailure{Cause: err}
	}
	defer func() {
		if err != nil {
			e.Store.Rollback(tx)
		}
	}()

	if err = e.retract(tx, facts); err != nil {
		return err
	}
	if err = e.Store.Commit(tx); err != nil {
		err = &kberrors.StoreFailure{Cause: err}
		return err
	}
	return nil
}

// retract is the shared engine for both user-requested retraction and
// cardinality-one supersession: it recomputes the justification rows the
// frontier facts support (the same way saturation would derive them),
// deletes those rows, and cascades to any derived fact whose support
// count reaches zero, repeating until the frontier is empty. It then
// marks every fact touched (the original frontier plus every cascaded
// orphan) removed as of tx.
func (e *Engine) retract(tx TxID, facts []Fact) error {
	removed := append([]Fact(nil), facts...)
	var allDeletes []JustRow
	processed := map[Fact]bool{}
	frontier := facts

	for len(frontier) > 0 {
		var roundDeletes []JustRow
		for _, f := range frontier {
			if processed[f] {
				continue
			}
			processed[f] = true
			ds, err := MatchAndRun(Now(), e.Store, e.Rules, f)
			if err != nil {
				return err
			}
			roundDeletes = append(roundDeletes, justRowsFor(ds)...)
		}
		allDeletes = append(allDeletes, roundDeletes...)

		orphans, err := gcOrphans(e.Store, allDeletes)
		if err != nil {
			return &kberrors.StoreFailure{Cause: err}
		}
		var nextFrontier []Fact
		for _, o := range orphans {
			if processed[o] {
				continue
			}
			nextFrontier = append(nextFrontier, o)
			removed = append(removed, o)
		}
		frontier = nextFrontier
	}

	if len(allDeletes) > 0 {
		keys := make([]JustDeleteKey, len(allDeletes))
		for i, r := range allDeletes {
			keys[i] = JustDeleteKey{RuleID: r.RuleID, JustificationHash: r.JustificationHash, DerivedFactHash: r.DerivedFactHash}
		}
		if err := e.Store.DeleteJustifications(tx, keys); err != nil {
			return &kberrors.StoreFailure{Cause: err}
		}
	}

	var ids []FactID
	for _, f := range removed {
		id, exists, _, err := e.Store.FactInfo(f)
		if err != nil {
			return &kberrors.StoreFailure{Cause: err}
		}
		if exists {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		if err := e.Store.MarkRemoved(tx, ids); err != nil {
			return &kberrors.StoreFailure{Cause: err}
		}
	}
	return nil
}

// ExplainSolutions plans and evaluates query, returning every solution as
// a (context, justification) pair.
func (e *Engine) ExplainSolutions(query *Predicate, view AsOf) ([]Solution, error) {
	plan, err := Plan(query, []Context{{}})
	if err != nil {
		return nil, err
	}
	return Evaluate(view, e.Store, plan, []Solution{EmptySolution()})
}

// Solve returns the set of variable bindings satisfying query, with
// justifications stripped. Implemented in terms of ExplainSolutions so
// the two calls can never disagree on which bindings exist. A binding
// justified more than one way collapses to a single entry, since Solve's
// contract is a set of contexts, not one entry per justification.
func (e *Engine) Solve(query *Predicate, view AsOf) ([]Context, error) {
	sols, err := e.ExplainSolutions(query, view)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []Context
	for _, s := range sols {
		key := canonicalContext(s.Context)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s.Context)
	}
	return out, nil
}

// RefreshInference drops justification rows for rules no longer in the
// current rule set, GCs any derived fact that becomes unsupported, and
// re-runs every current rule against the whole fact store to seed
// derivations the now-current rule set would produce but that predate it.
func (e *Engine) RefreshInference() (err error) {
	tx, err := e.Store.Begin()
	if err != nil {
		return &kberrors.StoreFailure{Cause: err}
	}
	defer func() {
		if err != nil {
			e.Store.Rollback(tx)
		}
	}()

	keep := make(map[Hash128]bool, len(e.Rules))
	for _, r := range e.Rules {
		keep[r.RuleID] = true
	}
	staleFacts, err := e.Store.DeleteJustificationsForUnknownRules(tx, keep)
	if err != nil {
		err = &kberrors.StoreFailure{Cause: err}
		return err
	}

	var orphanIDs []FactID
	for _, f := range staleFacts {
		count, cerr := e.Store.CountJustificationsFor(DerivedFactHash(f))
		if cerr != nil {
			err = &kberrors.StoreFailure{Cause: cerr}
			return err
		}
		if count == 0 {
			id, exists, _, ferr := e.Store.FactInfo(f)
			if ferr != nil {
				err = &kberrors.StoreFailure{Cause: ferr}
				return err
			}
			if exists {
				orphanIDs = append(orphanIDs, id)
			}
		}
	}
	if len(orphanIDs) > 0 {
		if err = e.Store.MarkRemoved(tx, orphanIDs); err != nil {
			err = &kberrors.StoreFailure{Cause: err}
			return err
		}
	}

	allFacts, err := e.Store.AllFacts(Now())
	if err != nil {
		err = &kberrors.StoreFailure{Cause: err}
		return err
	}
	if err = e.saturate(tx, allFacts); err != nil {
		return err
	}

	if err = e.Store.Commit(tx); err != nil {
		err = &kberrors.StoreFailure{Cause: err}
		return err
	}
	return nil
}
