// Package memstore is the simplest possible conforming kbase.FactStore:
// an in-memory, mutex-guarded fact and justification table, grounded on
// triplets/models.py's dict/filter-based TripletQS._lookup. It exists
// for the core's own tests and as a runnable reference for anyone
// wiring a new storage adapter.
package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"veritas/internal/kbase"
)

type factRow struct {
	id         kbase.FactID
	fact       kbase.Fact
	isInferred bool
	addedTx    kbase.TxID
	removedTx  kbase.TxID
	voided     bool
}

func (r *factRow) liveNow() bool { return !r.voided && r.removedTx == "" }

type justRow struct {
	row     kbase.JustRow
	voided  bool
	deleted bool
}

func (r *justRow) live() bool { return !r.voided && !r.deleted }

func (r *justRow) key() kbase.JustDeleteKey {
	return kbase.JustDeleteKey{
		RuleID:            r.row.RuleID,
		JustificationHash: r.row.JustificationHash,
		DerivedFactHash:   r.row.DerivedFactHash,
	}
}

type txLog struct {
	createdFacts []int
	removedFacts []int
	createdJusts []int
	deletedJusts []int
}

// Store is an in-memory FactStore. The zero value is not usable; call
// New.
type Store struct {
	mu   sync.Mutex
	rows []*factRow
	justs []*justRow

	factSeq int
	txSeq   int

	open map[kbase.TxID]*txLog

	// committedOrder/committedAt let AsOf resolve historical views; an
	// open (uncommitted) transaction has no entry, so its writes are
	// visible only to Now().
	committedOrder map[kbase.TxID]int
	committedAt    map[kbase.TxID]time.Time
	commitSeq      int
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		open:           map[kbase.TxID]*txLog{},
		committedOrder: map[kbase.TxID]int{},
		committedAt:    map[kbase.TxID]time.Time{},
	}
}

func (s *Store) Begin() (kbase.TxID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txSeq++
	tx := kbase.TxID(fmt.Sprintf("tx-%d", s.txSeq))
	s.open[tx] = &txLog{}
	return tx, nil
}

func (s *Store) requireOpen(tx kbase.TxID) (*txLog, error) {
	log, ok := s.open[tx]
	if !ok {
		return nil, fmt.Errorf("memstore: transaction %q is not open", tx)
	}
	return log, nil
}

func (s *Store) Commit(tx kbase.TxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireOpen(tx); err != nil {
		return err
	}
	s.commitSeq++
	s.committedOrder[tx] = s.commitSeq
	s.committedAt[tx] = time.Now()
	delete(s.open, tx)
	return nil
}

func (s *Store) Rollback(tx kbase.TxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.requireOpen(tx)
	if err != nil {
		return err
	}
	for _, i := range log.createdFacts {
		s.rows[i].voided = true
	}
	for _, i := range log.removedFacts {
		s.rows[i].removedTx = ""
	}
	for _, i := range log.createdJusts {
		s.justs[i].voided = true
	}
	for _, i := range log.deletedJusts {
		s.justs[i].deleted = false
	}
	delete(s.open, tx)
	return nil
}

func (s *Store) visibleAt(r *factRow, view kbase.AsOf) bool {
	if r.voided {
		return false
	}
	if view.Now {
		return r.removedTx == ""
	}
	target, ok := s.targetOrder(view)
	if !ok {
		return false
	}
	addedOrder, addedKnown := s.committedOrder[r.addedTx]
	if !addedKnown || addedOrder > target {
		return false
	}
	if r.removedTx == "" {
		return true
	}
	removedOrder, removedKnown := s.committedOrder[r.removedTx]
	return !removedKnown || removedOrder > target
}

func (s *Store) targetOrder(view kbase.AsOf) (int, bool) {
	if view.Tx != "" {
		order, ok := s.committedOrder[view.Tx]
		return order, ok
	}
	best := -1
	found := false
	for tx, at := range s.committedAt {
		if at.After(view.Time) {
			continue
		}
		if order := s.committedOrder[tx]; !found || order > best {
			best = order
			found = true
		}
	}
	return best, found
}

func (s *Store) Lookup(view kbase.AsOf, clause kbase.Clause) ([]kbase.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []kbase.Fact
	for _, r := range s.rows {
		if !s.visibleAt(r, view) {
			continue
		}
		if r.fact.Attr != clause.Attr {
			continue
		}
		out = append(out, r.fact)
	}
	return out, nil
}

func (s *Store) Append(tx kbase.TxID, facts []kbase.WriteFact) ([]kbase.FactID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.requireOpen(tx)
	if err != nil {
		return nil, err
	}
	ids := make([]kbase.FactID, len(facts))
	for i, wf := range facts {
		if existing := s.findLive(wf.Fact); existing != nil {
			ids[i] = existing.id
			continue
		}
		s.factSeq++
		row := &factRow{
			id:         kbase.FactID(fmt.Sprintf("f-%d", s.factSeq)),
			fact:       wf.Fact,
			isInferred: wf.IsInferred,
			addedTx:    tx,
		}
		s.rows = append(s.rows, row)
		log.createdFacts = append(log.createdFacts, len(s.rows)-1)
		ids[i] = row.id
	}
	return ids, nil
}

func (s *Store) findLive(f kbase.Fact) *factRow {
	for _, r := range s.rows {
		if r.liveNow() && r.fact.Equal(f) {
			return r
		}
	}
	return nil
}

func (s *Store) FactInfo(f kbase.Fact) (kbase.FactID, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findLive(f)
	if r == nil {
		return "", false, false, nil
	}
	return r.id, true, r.isInferred, nil
}

func (s *Store) MarkRemoved(tx kbase.TxID, ids []kbase.FactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.requireOpen(tx)
	if err != nil {
		return err
	}
	byID := map[kbase.FactID]bool{}
	for _, id := range ids {
		byID[id] = true
	}
	for i, r := range s.rows {
		if byID[r.id] && r.removedTx == "" {
			r.removedTx = tx
			log.removedFacts = append(log.removedFacts, i)
		}
	}
	return nil
}

func (s *Store) AppendJustifications(tx kbase.TxID, rows []kbase.JustRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.requireOpen(tx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if s.findLiveJust(row.RuleID, row.JustificationHash, row.DerivedFactHash) != nil {
			continue
		}
		jr := &justRow{row: row}
		s.justs = append(s.justs, jr)
		log.createdJusts = append(log.createdJusts, len(s.justs)-1)
	}
	return nil
}

func (s *Store) findLiveJust(ruleID, justHash, factHash kbase.Hash128) *justRow {
	for _, jr := range s.justs {
		if !jr.live() {
			continue
		}
		if jr.row.RuleID == ruleID && jr.row.JustificationHash == justHash && jr.row.DerivedFactHash == factHash {
			return jr
		}
	}
	return nil
}

func (s *Store) DeleteJustifications(tx kbase.TxID, keys []kbase.JustDeleteKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.requireOpen(tx)
	if err != nil {
		return err
	}
	want := map[kbase.JustDeleteKey]bool{}
	for _, k := range keys {
		want[k] = true
	}
	for i, jr := range s.justs {
		if jr.live() && want[jr.key()] {
			jr.deleted = true
			log.deletedJusts = append(log.deletedJusts, i)
		}
	}
	return nil
}

func (s *Store) CountJustificationsFor(derivedFactHash kbase.Hash128) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, jr := range s.justs {
		if jr.live() && jr.row.DerivedFactHash == derivedFactHash {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteJustificationsForUnknownRules(tx kbase.TxID, keep map[kbase.Hash128]bool) ([]kbase.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.requireOpen(tx)
	if err != nil {
		return nil, err
	}
	seen := map[kbase.Fact]bool{}
	var out []kbase.Fact
	for i, jr := range s.justs {
		if !jr.live() || keep[jr.row.RuleID] {
			continue
		}
		jr.deleted = true
		log.deletedJusts = append(log.deletedJusts, i)
		if !seen[jr.row.DerivedFact] {
			seen[jr.row.DerivedFact] = true
			out = append(out, jr.row.DerivedFact)
		}
	}
	return out, nil
}

func (s *Store) AllFacts(view kbase.AsOf) ([]kbase.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []kbase.Fact
	for _, r := range s.rows {
		if s.visibleAt(r, view) {
			out = append(out, r.fact)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Attr < out[j].Attr
	})
	return out, nil
}
