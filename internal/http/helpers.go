package http

import (
	"errors"
	"strings"
	"time"

	"hardline/internal/core"
)

// FixedExpenseResponse is the JSON view of a fixed expense.
type FixedExpenseResponse struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	AmountCents   int64      `json:"amount_cents"`
	Amount        string     `json:"amount"`
	TriggerDay    int        `json:"trigger_day"`
	IsActive      bool       `json:"is_active"`
	LastChargedAt *time.Time `json:"last_charged_at"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LedgerEntryResponse is the JSON view of a ledger entry.
type LedgerEntryResponse struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	OccurredAt     time.Time `json:"occurred_at"`
	AmountCents    int64     `json:"amount_cents"`
	Amount         string    `json:"amount"`
	Label          string    `json:"label"`
	Category       string    `json:"category"`
	Source         string    `json:"source"`
	FixedExpenseID *int64    `json:"fixed_expense_id"`
	Period         string    `json:"period"`
}

// RunResponse reports the outcome of an operator-triggered run.
type RunResponse struct {
	Date string `json:"date"`
	core.ChargeRunResult
}

func toFixedExpenseResponse(fe core.FixedExpense) FixedExpenseResponse {
	return FixedExpenseResponse{
		ID:            fe.ID,
		Name:          fe.Name,
		AmountCents:   fe.Amount.Cents,
		Amount:        fe.Amount.Format(),
		TriggerDay:    fe.TriggerDay,
		IsActive:      fe.IsActive,
		LastChargedAt: fe.LastChargedAt,
		Version:       fe.Version,
		CreatedAt:     fe.CreatedAt,
		UpdatedAt:     fe.UpdatedAt,
	}
}

func toLedgerEntryResponse(e core.LedgerEntry) LedgerEntryResponse {
	resp := LedgerEntryResponse{
		ID:          e.ID,
		Kind:        string(e.Kind),
		OccurredAt:  e.OccurredAt,
		AmountCents: e.Amount.Cents,
		Amount:      e.Amount.Format(),
		Label:       e.Label,
		Category:    string(e.Category),
		Source:      string(e.Source),
		Period:      e.Period,
	}
	// 0 means the fixed expense was deleted after the charge.
	if e.FixedExpenseID != 0 {
		id := e.FixedExpenseID
		resp.FixedExpenseID = &id
	}
	return resp
}

// validationMessage maps domain validation errors to client messages. The
// second result is false for errors that are not the client's fault.
func validationMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, core.ErrEmptyName):
		return "name is required", true
	case errors.Is(err, core.ErrNameTooLong):
		return core.ErrNameTooLong.Error(), true
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount must be a non-negative decimal number", true
	case errors.Is(err, core.ErrInvalidTriggerDay):
		return core.ErrInvalidTriggerDay.Error(), true
	case errors.Is(err, core.ErrMissingOwner):
		return errMissingUser.Error(), true
	default:
		return "", false
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
