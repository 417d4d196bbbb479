package services

import (
	"context"
	"fmt"
	"time"

	"hardline/internal/core"
	"hardline/internal/ports"
)

// GuardDecision is the idempotency guard's verdict for one fixed expense.
type GuardDecision int

const (
	// DecisionCharge means no charge exists for the month yet.
	DecisionCharge GuardDecision = iota
	// DecisionSkip means last_charged_at already falls in the month.
	DecisionSkip
	// DecisionReconcile means the ledger holds this month's auto-debit but
	// last_charged_at is stale; the timestamp must be repaired, not re-charged.
	DecisionReconcile
)

func (d GuardDecision) String() string {
	switch d {
	case DecisionCharge:
		return "charge"
	case DecisionSkip:
		return "skip"
	case DecisionReconcile:
		return "reconcile"
	default:
		return fmt.Sprintf("GuardDecision(%d)", int(d))
	}
}

// ChargeGuard decides whether a scheduled charge may run for the month.
//
// It consults two signals: the record's last_charged_at, and the ledger itself
// (owner + exact auto-debit label + month range). The ledger lookup is what
// recovers a charge whose timestamp update was lost.
type ChargeGuard struct {
	ledger ports.LedgerStore
}

func NewChargeGuard(ledger ports.LedgerStore) *ChargeGuard {
	return &ChargeGuard{ledger: ledger}
}

func (g *ChargeGuard) Check(ctx context.Context, fe core.FixedExpense, today time.Time) (GuardDecision, error) {
	if fe.ChargedIn(today) {
		return DecisionSkip, nil
	}

	start, end := core.MonthBounds(today)
	found, err := g.ledger.HasLedgerEntry(ctx, fe.OwnerID, core.AutoDebitLabel(fe.Name), start, end)
	if err != nil {
		return DecisionCharge, fmt.Errorf("ledger lookup: %w", err)
	}
	if found {
		return DecisionReconcile, nil
	}
	return DecisionCharge, nil
}
