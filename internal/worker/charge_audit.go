package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"hardline/internal/amqp"
	applog "hardline/internal/log"
	"hardline/internal/storage"
)

// EventRecorder stores audited charge events. It reports false when the
// message id was already recorded.
type EventRecorder interface {
	RecordChargeEvent(ctx context.Context, ev storage.ChargeEvent) (bool, error)
}

// ChargeAuditWorker appends consumed charge events to the audit table.
type ChargeAuditWorker struct {
	recorder EventRecorder
}

func NewChargeAuditWorker(recorder EventRecorder) *ChargeAuditWorker {
	return &ChargeAuditWorker{recorder: recorder}
}

// Handle records msg once. Redelivered messages are acknowledged without a
// second row; storage errors are returned so the message is requeued.
func (w *ChargeAuditWorker) Handle(ctx context.Context, msg *amqp.ChargeEventMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	ev := storage.ChargeEvent{
		MessageID: msg.MessageID,
		EventType: msg.Type,
		Payload:   string(body),
	}
	if owner := msg.OwnerID(); owner != "" {
		ev.OwnerID = sql.NullString{String: owner, Valid: true}
	}

	inserted, err := w.recorder.RecordChargeEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("record charge event %s: %w", msg.MessageID, err)
	}
	if !inserted {
		slog.InfoContext(ctx, "Duplicate charge event ignored",
			applog.FieldComponent, applog.ComponentAuditor,
			"message_id", msg.MessageID)
		return nil
	}

	switch msg.Type {
	case amqp.EventChargeRecorded:
		slog.InfoContext(ctx, "Audited charge",
			applog.FieldComponent, applog.ComponentAuditor,
			"message_id", msg.MessageID,
			applog.FieldOwnerID, msg.Charge.OwnerID,
			applog.FieldFixedExpenseID, msg.Charge.FixedExpenseID,
			"label", msg.Charge.Label,
			applog.FieldAmountCents, msg.Charge.AmountCents,
			applog.FieldPeriod, msg.Charge.Period)
	case amqp.EventChargeRunCompleted:
		level := slog.LevelInfo
		if msg.Run.Failed > 0 {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Audited charge run",
			applog.FieldComponent, applog.ComponentAuditor,
			"message_id", msg.MessageID,
			"day", msg.Run.Day,
			"succeeded", msg.Run.Succeeded,
			"skipped", msg.Run.Skipped,
			"failed", msg.Run.Failed)
	}
	return nil
}
