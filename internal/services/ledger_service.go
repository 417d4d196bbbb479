package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hardline/internal/core"
	"hardline/internal/ports"
)

// LedgerService records charges in the store and announces them over AMQP.
type LedgerService struct {
	recorder  ports.ChargeRecorder
	publisher ports.ChargeEventPublisher
}

// NewLedgerService creates a ledger service. A nil publisher disables event
// publishing.
func NewLedgerService(recorder ports.ChargeRecorder, publisher ports.ChargeEventPublisher) *LedgerService {
	return &LedgerService{
		recorder:  recorder,
		publisher: publisher,
	}
}

// RecordCharge saves the charge locally and publishes a charge-recorded event.
func (s *LedgerService) RecordCharge(ctx context.Context, p ports.ChargeParams) (core.LedgerEntry, error) {
	entry, err := s.recorder.RecordCharge(ctx, p)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("record charge: %w", err)
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "Event publisher not available, skipping charge event")
		return entry, nil
	}
	if err := s.publisher.PublishChargeRecorded(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to publish charge event",
			"ledger_id", entry.ID, "error", err)
		// The charge is committed, the event is best effort.
	}

	return entry, nil
}

// AnnounceRun publishes the outcome of a scheduler run.
func (s *LedgerService) AnnounceRun(ctx context.Context, day time.Time, r core.ChargeRunResult) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChargeRunCompleted(ctx, day, r); err != nil {
		slog.ErrorContext(ctx, "Failed to publish charge run event", "error", err)
	}
}
