package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hardline/internal/core"
)

// Ports for outbound adapters.
type (
	FixedExpenseStore interface {
		CreateFixedExpense(ctx context.Context, fe core.FixedExpense) (core.FixedExpense, error)
		GetFixedExpense(ctx context.Context, id int64) (core.FixedExpense, error)
		ListFixedExpenses(ctx context.Context, owner uuid.UUID) ([]core.FixedExpense, error)
		UpdateFixedExpense(ctx context.Context, fe core.FixedExpense) (core.FixedExpense, error)
		DeleteFixedExpense(ctx context.Context, owner uuid.UUID, id int64) error

		// ListDueFixedExpenses returns active fixed expenses of every owner whose
		// trigger day is one of days.
		ListDueFixedExpenses(ctx context.Context, days []int) ([]core.FixedExpense, error)

		// TouchLastCharged sets last_charged_at without creating a ledger entry.
		TouchLastCharged(ctx context.Context, id int64, at time.Time) error
	}

	LedgerStore interface {
		// HasLedgerEntry reports whether owner has an entry with exactly label
		// whose occurred_at lies in [from, to].
		HasLedgerEntry(ctx context.Context, owner uuid.UUID, label string, from, to time.Time) (bool, error)
		ListLedgerEntries(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]core.LedgerEntry, error)
	}

	// ChargeRecorder stores a charge and advances the fixed expense's
	// last_charged_at together.
	ChargeRecorder interface {
		RecordCharge(ctx context.Context, p ChargeParams) (core.LedgerEntry, error)
	}

	Store interface {
		FixedExpenseStore
		LedgerStore
		ChargeRecorder
		Close() error
	}

	ChargeEventPublisher interface {
		PublishChargeRecorded(ctx context.Context, e core.LedgerEntry) error
		PublishChargeRunCompleted(ctx context.Context, day time.Time, r core.ChargeRunResult) error
	}
)

// ChargeParams describes one charge write.
//
// ExpectedVersion is the fixed expense version the caller read. The write is
// rejected with core.ErrChargeConflict when the stored version differs, so two
// overlapping runs cannot both charge the same record.
type ChargeParams struct {
	Entry           core.LedgerEntry
	ExpectedVersion int64
	ChargedAt       time.Time
}
