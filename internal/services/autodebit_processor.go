package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"hardline/internal/core"
	applog "hardline/internal/log"
	"hardline/internal/ports"
)

// AutoDebitProcessor charges every fixed expense that is due on a given day.
type AutoDebitProcessor struct {
	store   ports.FixedExpenseStore
	guard   *ChargeGuard
	ledger  *LedgerService
	matcher TriggerDayMatcher
}

// NewAutoDebitProcessor creates a processor. A nil matcher means StrictMatcher.
func NewAutoDebitProcessor(store ports.FixedExpenseStore, guard *ChargeGuard, ledger *LedgerService, matcher TriggerDayMatcher) *AutoDebitProcessor {
	if matcher == nil {
		matcher = StrictMatcher{}
	}
	return &AutoDebitProcessor{
		store:   store,
		guard:   guard,
		ledger:  ledger,
		matcher: matcher,
	}
}

// RunDailyCharges charges every active fixed expense due on today, at most once
// per expense per calendar month.
//
// Failures of individual expenses are counted and never stop the batch. The
// returned error is non-nil only when due expenses could not be listed or ctx
// was cancelled midway; the counts gathered so far are still returned.
func (p *AutoDebitProcessor) RunDailyCharges(ctx context.Context, today time.Time) (core.ChargeRunResult, error) {
	var result core.ChargeRunResult
	if p.store == nil || p.guard == nil || p.ledger == nil {
		return result, fmt.Errorf("processor not properly initialized")
	}

	days := p.matcher.DaysFor(today)
	due, err := p.store.ListDueFixedExpenses(ctx, days)
	if err != nil {
		return result, fmt.Errorf("failed to get due fixed expenses: %w", err)
	}

	slog.InfoContext(ctx, "Processing auto-debits",
		applog.FieldComponent, applog.ComponentAutoDebit,
		"total_due", len(due),
		"trigger_days", days,
		"processing_date", today.Format("2006-01-02"))

	for _, fe := range due {
		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "Auto-debit run interrupted",
				"remaining", len(due)-result.Total(),
				"error", err)
			return result, err
		}

		switch outcome, err := p.chargeOne(ctx, fe, today); {
		case err != nil:
			result.Failed++
			slog.ErrorContext(ctx, "Auto-debit failed",
				applog.FieldFixedExpenseID, fe.ID,
				applog.FieldOwnerID, fe.OwnerID,
				"name", fe.Name,
				applog.FieldError, err)
		case outcome == DecisionCharge:
			result.Succeeded++
		default:
			result.Skipped++
		}
	}

	slog.InfoContext(ctx, "Auto-debit processing complete",
		applog.FieldComponent, applog.ComponentAutoDebit,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"total_checked", len(due))

	p.ledger.AnnounceRun(ctx, today, result)

	return result, nil
}

// chargeOne returns DecisionCharge when a new entry was written and
// DecisionSkip or DecisionReconcile when the month was already covered.
//
// A record edited after it was listed fails the version check. It is then
// re-read and, if still due today, checked and charged once more.
func (p *AutoDebitProcessor) chargeOne(ctx context.Context, fe core.FixedExpense, today time.Time) (GuardDecision, error) {
	decision, err := p.charge(ctx, fe, today)
	if !errors.Is(err, core.ErrChargeConflict) {
		return decision, err
	}

	fresh, err := p.store.GetFixedExpense(ctx, fe.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "Auto-debit target deleted during run, skipping",
			applog.FieldFixedExpenseID, fe.ID)
		return DecisionSkip, nil
	}
	if err != nil {
		return decision, fmt.Errorf("reload after version conflict: %w", err)
	}
	if !fresh.IsActive || !slices.Contains(p.matcher.DaysFor(today), fresh.TriggerDay) {
		slog.InfoContext(ctx, "Auto-debit target no longer due after edit, skipping",
			applog.FieldFixedExpenseID, fe.ID,
			"is_active", fresh.IsActive,
			"trigger_day", fresh.TriggerDay)
		return DecisionSkip, nil
	}

	slog.DebugContext(ctx, "Retrying auto-debit with reloaded record",
		applog.FieldFixedExpenseID, fe.ID,
		"listed_version", fe.Version,
		"current_version", fresh.Version)
	decision, err = p.charge(ctx, fresh, today)
	if err != nil {
		return decision, fmt.Errorf("charge after reload: %w", err)
	}
	return decision, nil
}

// charge runs the guard and, when it allows, writes the entry against
// fe.Version. core.ErrChargeConflict is returned unwrapped.
func (p *AutoDebitProcessor) charge(ctx context.Context, fe core.FixedExpense, today time.Time) (GuardDecision, error) {
	decision, err := p.guard.Check(ctx, fe, today)
	if err != nil {
		return decision, err
	}

	switch decision {
	case DecisionSkip:
		slog.DebugContext(ctx, "Auto-debit already charged this month",
			applog.FieldFixedExpenseID, fe.ID,
			"last_charged_at", fe.LastChargedAt)
		return DecisionSkip, nil

	case DecisionReconcile:
		if err := p.store.TouchLastCharged(ctx, fe.ID, today); err != nil {
			return decision, fmt.Errorf("reconcile last charged: %w", err)
		}
		slog.InfoContext(ctx, "Reconciled stale last_charged_at from ledger",
			applog.FieldFixedExpenseID, fe.ID,
			applog.FieldOwnerID, fe.OwnerID)
		return DecisionReconcile, nil
	}

	entry := core.NewCharge(fe, core.SourceAuto, today)
	_, err = p.ledger.RecordCharge(ctx, ports.ChargeParams{
		Entry:           entry,
		ExpectedVersion: fe.Version,
		ChargedAt:       today,
	})
	if errors.Is(err, core.ErrAlreadyCharged) {
		// Another run wrote this period's entry after we listed the record.
		slog.WarnContext(ctx, "Auto-debit lost race, skipping",
			applog.FieldFixedExpenseID, fe.ID,
			applog.FieldError, err)
		return DecisionSkip, nil
	}
	if err != nil {
		return decision, err
	}

	slog.InfoContext(ctx, "Created auto-debit",
		applog.FieldFixedExpenseID, fe.ID,
		applog.FieldOwnerID, fe.OwnerID,
		"label", entry.Label,
		applog.FieldAmountCents, entry.Amount.Cents)

	return DecisionCharge, nil
}
