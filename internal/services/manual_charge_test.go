package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"hardline/internal/core"
	"hardline/internal/storage/memory"
)

func TestManualCharge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.November, 20, 14, 30, 0, 0, time.UTC)

	store := memory.New()
	pub := &fakePublisher{}
	m := NewManualCharger(store, NewLedgerService(store, pub), func() time.Time { return now })

	rent := mustCreate(t, store, core.FixedExpense{
		OwnerID: uuid.New(), Name: "Rent", Amount: core.Money{Cents: 850000}, TriggerDay: 1, IsActive: true,
	})

	if !m.ManualCharge(ctx, rent.ID) {
		t.Fatalf("expected manual charge to succeed")
	}
	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Label != "Manual debit: Rent" || e.Source != core.SourceManual || !e.OccurredAt.Equal(now) {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Kind != core.KindExpense || e.Category != core.CategoryEssential || e.Amount.Cents != 850000 {
		t.Fatalf("unexpected entry classification %+v", e)
	}
	got, _ := store.GetFixedExpense(ctx, rent.ID)
	if got.LastChargedAt == nil || !got.LastChargedAt.Equal(now) {
		t.Fatalf("last_charged_at = %v, want %v", got.LastChargedAt, now)
	}
	if len(pub.recorded) != 1 {
		t.Fatalf("expected charge event to be published")
	}

	// Manual charges are not deduplicated.
	if !m.ManualCharge(ctx, rent.ID) {
		t.Fatalf("second manual charge should succeed")
	}
	if n := len(store.Entries()); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}

func TestManualCharge_Rejections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := NewManualCharger(store, NewLedgerService(store, nil), nil)

	inactive := mustCreate(t, store, core.FixedExpense{
		OwnerID: uuid.New(), Name: "Old gym", Amount: core.Money{Cents: 100}, TriggerDay: 5, IsActive: false,
	})
	failing := mustCreate(t, store, core.FixedExpense{
		OwnerID: uuid.New(), Name: "Phone", Amount: core.Money{Cents: 100}, TriggerDay: 5, IsActive: true,
	})
	store.FailRecordCharge = func(id int64) bool { return id == failing.ID }

	tests := []struct {
		name string
		id   int64
	}{
		{"missing", 9999},
		{"inactive", inactive.ID},
		{"write failure", failing.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if m.ManualCharge(ctx, tt.id) {
				t.Fatalf("expected false")
			}
		})
	}
	if n := len(store.Entries()); n != 0 {
		t.Fatalf("rejected manual charges wrote %d entries", n)
	}
	got, _ := store.GetFixedExpense(ctx, failing.ID)
	if got.LastChargedAt != nil {
		t.Fatalf("failed manual charge must not touch last_charged_at")
	}
}

func TestManualChargeThenAutoDebitSameMonth(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := NewLedgerService(store, nil)
	manualAt := date(2025, time.November, 3)
	m := NewManualCharger(store, ledger, func() time.Time { return manualAt })
	p := NewAutoDebitProcessor(store, NewChargeGuard(store), ledger, fixedDays{1})

	fe := mustCreate(t, store, core.FixedExpense{
		OwnerID: uuid.New(), Name: "Rent", Amount: core.Money{Cents: 850000}, TriggerDay: 1, IsActive: true,
	})
	if !m.ManualCharge(ctx, fe.ID) {
		t.Fatalf("manual charge failed")
	}

	res, err := p.RunDailyCharges(ctx, date(2025, time.November, 10))
	if err != nil {
		t.Fatalf("RunDailyCharges: %v", err)
	}
	if res != (core.ChargeRunResult{Skipped: 1}) {
		t.Fatalf("manual charge should cover the month's auto-debit, got %+v", res)
	}
}

// renamingStore renames the record once, right after the first read hands
// out a snapshot.
type renamingStore struct {
	*memory.Store
	renamed bool
}

func (s *renamingStore) GetFixedExpense(ctx context.Context, id int64) (core.FixedExpense, error) {
	fe, err := s.Store.GetFixedExpense(ctx, id)
	if err != nil || s.renamed {
		return fe, err
	}
	s.renamed = true
	edited := fe
	edited.Name = "Rent (new flat)"
	if _, err := s.Store.UpdateFixedExpense(ctx, edited); err != nil {
		return core.FixedExpense{}, err
	}
	return fe, nil
}

func TestManualCharge_EditAfterRead(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.November, 20, 14, 30, 0, 0, time.UTC)
	mem := memory.New()
	store := &renamingStore{Store: mem}
	m := NewManualCharger(store, NewLedgerService(mem, nil), func() time.Time { return now })

	fe := mustCreate(t, mem, core.FixedExpense{
		OwnerID: uuid.New(), Name: "Rent", Amount: core.Money{Cents: 850000}, TriggerDay: 1, IsActive: true,
	})

	if !m.ManualCharge(ctx, fe.ID) {
		t.Fatalf("manual charge must survive a concurrent edit")
	}
	entries := mem.Entries()
	if len(entries) != 1 || entries[0].Label != "Manual debit: Rent (new flat)" {
		t.Fatalf("expected one entry for the edited record, got %+v", entries)
	}
	got, _ := mem.GetFixedExpense(ctx, fe.ID)
	if got.LastChargedAt == nil || !got.LastChargedAt.Equal(now) {
		t.Fatalf("last_charged_at = %v, want %v", got.LastChargedAt, now)
	}
}

func TestManualCharge_LocalClockPeriod(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	ctx := context.Background()
	// 23:30 UTC on Oct 31 is already Nov 1 in Rome.
	utc := time.Date(2025, time.October, 31, 23, 30, 0, 0, time.UTC)
	store := memory.New()
	m := NewManualCharger(store, NewLedgerService(store, nil), func() time.Time { return utc.In(rome) })

	fe := mustCreate(t, store, core.FixedExpense{
		OwnerID: uuid.New(), Name: "Rent", Amount: core.Money{Cents: 850000}, TriggerDay: 1, IsActive: true,
	})
	if !m.ManualCharge(ctx, fe.ID) {
		t.Fatalf("manual charge failed")
	}
	if got := store.Entries()[0].Period; got != "2025-11" {
		t.Fatalf("period = %q, want the local month 2025-11", got)
	}
}
