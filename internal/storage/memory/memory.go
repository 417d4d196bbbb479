package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hardline/internal/core"
	"hardline/internal/ports"
)

var _ ports.Store = (*Store)(nil)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("memory: injected failure")

// Store keeps fixed expenses and ledger entries in process memory. It honours
// the same version check and one-auto-charge-per-period rule as the SQLite
// repository.
type Store struct {
	mu       sync.Mutex
	nextFE   int64
	nextLE   int64
	expenses map[int64]core.FixedExpense
	entries  []core.LedgerEntry

	// FailRecordCharge, when it returns true for a fixed expense id, makes
	// RecordCharge fail with ErrInjected.
	FailRecordCharge func(fixedExpenseID int64) bool
	// FailTouch makes TouchLastCharged fail with ErrInjected.
	FailTouch func(fixedExpenseID int64) bool
	// FailListDue makes ListDueFixedExpenses fail with ErrInjected.
	FailListDue bool
	// FailLookup makes HasLedgerEntry fail with ErrInjected.
	FailLookup bool
}

func New() *Store {
	return &Store{expenses: map[int64]core.FixedExpense{}}
}

func (s *Store) CreateFixedExpense(_ context.Context, fe core.FixedExpense) (core.FixedExpense, error) {
	if err := fe.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFE++
	now := time.Now()
	fe.ID = s.nextFE
	fe.Version = 1
	fe.CreatedAt = now
	fe.UpdatedAt = now
	s.expenses[fe.ID] = copyFixedExpense(fe)
	return copyFixedExpense(fe), nil
}

func (s *Store) GetFixedExpense(_ context.Context, id int64) (core.FixedExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fe, ok := s.expenses[id]
	if !ok {
		return core.FixedExpense{}, core.ErrNotFound
	}
	return copyFixedExpense(fe), nil
}

func (s *Store) ListFixedExpenses(_ context.Context, owner uuid.UUID) ([]core.FixedExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.FixedExpense{}
	for _, fe := range s.expenses {
		if fe.OwnerID == owner {
			out = append(out, copyFixedExpense(fe))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerDay != out[j].TriggerDay {
			return out[i].TriggerDay < out[j].TriggerDay
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateFixedExpense(_ context.Context, fe core.FixedExpense) (core.FixedExpense, error) {
	if err := fe.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[fe.ID]
	if !ok || cur.OwnerID != fe.OwnerID {
		return core.FixedExpense{}, core.ErrNotFound
	}
	cur.Name = fe.Name
	cur.Amount = fe.Amount
	cur.TriggerDay = fe.TriggerDay
	cur.IsActive = fe.IsActive
	cur.Version++
	cur.UpdatedAt = time.Now()
	s.expenses[cur.ID] = cur
	return copyFixedExpense(cur), nil
}

func (s *Store) DeleteFixedExpense(_ context.Context, owner uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[id]
	if !ok || cur.OwnerID != owner {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	for i := range s.entries {
		if s.entries[i].FixedExpenseID == id {
			s.entries[i].FixedExpenseID = 0
		}
	}
	return nil
}

func (s *Store) ListDueFixedExpenses(_ context.Context, days []int) ([]core.FixedExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailListDue {
		return nil, ErrInjected
	}
	want := map[int]struct{}{}
	for _, d := range days {
		want[d] = struct{}{}
	}
	out := []core.FixedExpense{}
	for _, fe := range s.expenses {
		if _, ok := want[fe.TriggerDay]; ok && fe.IsActive {
			out = append(out, copyFixedExpense(fe))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TouchLastCharged(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTouch != nil && s.FailTouch(id) {
		return ErrInjected
	}
	cur, ok := s.expenses[id]
	if !ok {
		return core.ErrNotFound
	}
	cur.LastChargedAt = &at
	cur.Version++
	cur.UpdatedAt = time.Now()
	s.expenses[id] = cur
	return nil
}

func (s *Store) HasLedgerEntry(_ context.Context, owner uuid.UUID, label string, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLookup {
		return false, ErrInjected
	}
	for _, e := range s.entries {
		if e.OwnerID == owner && e.Label == label && !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, owner uuid.UUID, from, to time.Time) ([]core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.LedgerEntry{}
	for _, e := range s.entries {
		if e.OwnerID == owner && !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *Store) RecordCharge(_ context.Context, p ports.ChargeParams) (core.LedgerEntry, error) {
	if err := p.Entry.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRecordCharge != nil && s.FailRecordCharge(p.Entry.FixedExpenseID) {
		return core.LedgerEntry{}, ErrInjected
	}
	cur, ok := s.expenses[p.Entry.FixedExpenseID]
	if !ok {
		return core.LedgerEntry{}, core.ErrNotFound
	}
	if cur.Version != p.ExpectedVersion {
		return core.LedgerEntry{}, core.ErrChargeConflict
	}
	if p.Entry.Source == core.SourceAuto {
		for _, e := range s.entries {
			if e.Source == core.SourceAuto && e.FixedExpenseID == p.Entry.FixedExpenseID && e.Period == p.Entry.Period {
				return core.LedgerEntry{}, core.ErrAlreadyCharged
			}
		}
	}

	at := p.ChargedAt
	cur.LastChargedAt = &at
	cur.Version++
	cur.UpdatedAt = time.Now()
	s.expenses[cur.ID] = cur

	s.nextLE++
	entry := p.Entry
	entry.ID = s.nextLE
	s.entries = append(s.entries, entry)
	return entry, nil
}

// AddLedgerEntry inserts an entry directly, bypassing the charge path. Used to
// seed ledger state that drifted from last_charged_at.
func (s *Store) AddLedgerEntry(e core.LedgerEntry) core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLE++
	e.ID = s.nextLE
	s.entries = append(s.entries, e)
	return e
}

// Entries returns every stored ledger entry in insertion order.
func (s *Store) Entries() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEntry(nil), s.entries...)
}

func (s *Store) Close() error { return nil }

func copyFixedExpense(fe core.FixedExpense) core.FixedExpense {
	if fe.LastChargedAt != nil {
		t := *fe.LastChargedAt
		fe.LastChargedAt = &t
	}
	return fe
}
