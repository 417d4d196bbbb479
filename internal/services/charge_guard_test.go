package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"hardline/internal/core"
	"hardline/internal/storage/memory"
)

func TestChargeGuard_Check(t *testing.T) {
	owner := uuid.New()
	today := date(2025, time.November, 15)
	earlier := date(2025, time.November, 1)
	lastMonth := date(2025, time.October, 31)

	tests := []struct {
		name   string
		last   *time.Time
		ledger []core.LedgerEntry
		want   GuardDecision
	}{
		{name: "never charged", want: DecisionCharge},
		{name: "charged earlier this month", last: &earlier, want: DecisionSkip},
		{name: "charged last month", last: &lastMonth, want: DecisionCharge},
		{
			name: "ledger has this month's auto-debit",
			ledger: []core.LedgerEntry{{
				OwnerID: owner, Label: "Auto-debit: Rent", OccurredAt: earlier, Source: core.SourceAuto,
			}},
			want: DecisionReconcile,
		},
		{
			name: "ledger label differs by case",
			ledger: []core.LedgerEntry{{
				OwnerID: owner, Label: "auto-debit: rent", OccurredAt: earlier, Source: core.SourceAuto,
			}},
			want: DecisionCharge,
		},
		{
			name: "ledger entry on first instant of next month",
			ledger: []core.LedgerEntry{{
				OwnerID: owner, Label: "Auto-debit: Rent", OccurredAt: date(2025, time.December, 1), Source: core.SourceAuto,
			}},
			want: DecisionCharge,
		},
		{
			name: "ledger entry on last instant of month",
			ledger: []core.LedgerEntry{{
				OwnerID: owner, Label: "Auto-debit: Rent", OccurredAt: date(2025, time.December, 1).Add(-time.Nanosecond), Source: core.SourceAuto,
			}},
			want: DecisionReconcile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			for _, e := range tt.ledger {
				store.AddLedgerEntry(e)
			}
			g := NewChargeGuard(store)
			fe := core.FixedExpense{ID: 1, OwnerID: owner, Name: "Rent", LastChargedAt: tt.last}

			got, err := g.Check(context.Background(), fe, today)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChargeGuard_LookupError(t *testing.T) {
	store := memory.New()
	store.FailLookup = true
	g := NewChargeGuard(store)

	_, err := g.Check(context.Background(), core.FixedExpense{OwnerID: uuid.New(), Name: "Rent"}, date(2025, time.May, 1))
	if !errors.Is(err, memory.ErrInjected) {
		t.Fatalf("expected wrapped injected error, got %v", err)
	}
}

func TestGuardDecisionString(t *testing.T) {
	if DecisionReconcile.String() != "reconcile" || GuardDecision(9).String() != "GuardDecision(9)" {
		t.Fatalf("unexpected decision strings")
	}
}
