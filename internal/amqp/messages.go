package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"hardline/internal/core"
)

// Event types carried by ChargeEventMessage.
const (
	EventChargeRecorded     = "charge.recorded"
	EventChargeRunCompleted = "charge.run_completed"
)

// ChargeEventMessage is the envelope for every message on the charge queue.
// Exactly one of Charge or Run is set, depending on Type.
type ChargeEventMessage struct {
	MessageID string         `json:"message_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Charge    *ChargePayload `json:"charge,omitempty"`
	Run       *RunPayload    `json:"run,omitempty"`
}

// ChargePayload describes one ledger entry written by a charge.
type ChargePayload struct {
	LedgerID       int64     `json:"ledger_id"`
	OwnerID        string    `json:"owner_id"`
	FixedExpenseID int64     `json:"fixed_expense_id"`
	Label          string    `json:"label"`
	AmountCents    int64     `json:"amount_cents"`
	Source         string    `json:"source"`
	Period         string    `json:"period"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RunPayload summarizes one scheduler run.
type RunPayload struct {
	Day       string `json:"day"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// NewChargeRecordedMessage creates a message announcing a stored charge.
func NewChargeRecordedMessage(e core.LedgerEntry) *ChargeEventMessage {
	return &ChargeEventMessage{
		MessageID: uuid.NewString(),
		Type:      EventChargeRecorded,
		Timestamp: time.Now(),
		Charge: &ChargePayload{
			LedgerID:       e.ID,
			OwnerID:        e.OwnerID.String(),
			FixedExpenseID: e.FixedExpenseID,
			Label:          e.Label,
			AmountCents:    e.Amount.Cents,
			Source:         string(e.Source),
			Period:         e.Period,
			OccurredAt:     e.OccurredAt,
		},
	}
}

// NewChargeRunCompletedMessage creates a message announcing a finished run.
func NewChargeRunCompletedMessage(day time.Time, r core.ChargeRunResult) *ChargeEventMessage {
	return &ChargeEventMessage{
		MessageID: uuid.NewString(),
		Type:      EventChargeRunCompleted,
		Timestamp: time.Now(),
		Run: &RunPayload{
			Day:       day.Format("2006-01-02"),
			Succeeded: r.Succeeded,
			Skipped:   r.Skipped,
			Failed:    r.Failed,
		},
	}
}

// OwnerID returns the owner of a charge message, or "" for run messages.
func (m *ChargeEventMessage) OwnerID() string {
	if m.Charge == nil {
		return ""
	}
	return m.Charge.OwnerID
}

// ToJSON converts the message to JSON bytes
func (m *ChargeEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChargeEventMessageFromJSON decodes and checks a message.
func ChargeEventMessageFromJSON(data []byte) (*ChargeEventMessage, error) {
	var msg ChargeEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.MessageID == "" {
		return nil, errors.New("message_id is required")
	}
	switch msg.Type {
	case EventChargeRecorded:
		if msg.Charge == nil {
			return nil, errors.New("charge payload is required")
		}
	case EventChargeRunCompleted:
		if msg.Run == nil {
			return nil, errors.New("run payload is required")
		}
	default:
		return nil, errors.New("unknown event type: " + msg.Type)
	}
	return &msg, nil
}
