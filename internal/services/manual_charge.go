package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hardline/internal/core"
	applog "hardline/internal/log"
	"hardline/internal/ports"
)

// ManualCharger charges a single fixed expense on demand. Manual charges are
// not deduplicated: each call that succeeds writes a new ledger entry.
type ManualCharger struct {
	store  ports.FixedExpenseStore
	ledger *LedgerService
	now    func() time.Time
}

// NewManualCharger creates a manual charger. A nil now uses time.Now.
func NewManualCharger(store ports.FixedExpenseStore, ledger *LedgerService, now func() time.Time) *ManualCharger {
	if now == nil {
		now = time.Now
	}
	return &ManualCharger{store: store, ledger: ledger, now: now}
}

// ManualCharge writes a "Manual debit: {name}" entry for the fixed expense and
// sets its last_charged_at to now. It reports false, without writing anything,
// when the expense does not exist, is inactive, or the write fails; the reason
// is logged.
func (m *ManualCharger) ManualCharge(ctx context.Context, id int64) bool {
	fe, err := m.store.GetFixedExpense(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "Manual debit rejected",
			applog.FieldFixedExpenseID, id,
			applog.FieldError, err)
		return false
	}
	if !fe.IsActive {
		slog.WarnContext(ctx, "Manual debit rejected",
			applog.FieldFixedExpenseID, id,
			applog.FieldError, core.ErrInactive)
		return false
	}

	now := m.now()
	entry, err := m.record(ctx, fe, now)
	if errors.Is(err, core.ErrChargeConflict) {
		// Edited or charged since it was read; manual charges still go
		// through, against the current version.
		if fe, err = m.store.GetFixedExpense(ctx, id); err == nil {
			if !fe.IsActive {
				err = core.ErrInactive
			} else {
				entry, err = m.record(ctx, fe, now)
			}
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "Manual debit failed",
			applog.FieldFixedExpenseID, id,
			applog.FieldOwnerID, fe.OwnerID,
			applog.FieldError, err)
		return false
	}

	slog.InfoContext(ctx, "Created manual debit",
		applog.FieldFixedExpenseID, id,
		applog.FieldOwnerID, fe.OwnerID,
		"ledger_id", entry.ID,
		applog.FieldAmountCents, entry.Amount.Cents)
	return true
}

func (m *ManualCharger) record(ctx context.Context, fe core.FixedExpense, now time.Time) (core.LedgerEntry, error) {
	return m.ledger.RecordCharge(ctx, ports.ChargeParams{
		Entry:           core.NewCharge(fe, core.SourceManual, now),
		ExpectedVersion: fe.Version,
		ChargedAt:       now,
	})
}
