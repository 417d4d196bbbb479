package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	KindExpense EntryKind = "expense"

	CategoryEssential Category = "essential"

	SourceAuto   ChargeSource = "auto"
	SourceManual ChargeSource = "manual"
)

const (
	autoDebitPrefix   = "Auto-debit: "
	manualDebitPrefix = "Manual debit: "

	maxNameLength = 200
	periodLayout  = "2006-01"
)

type (
	EntryKind    string
	Category     string
	ChargeSource string

	Money struct {
		Cents int64 `json:"cents"`
	}

	// FixedExpense is a user's recurring charge definition (a debit order).
	FixedExpense struct {
		ID            int64
		OwnerID       uuid.UUID
		Name          string
		Amount        Money
		TriggerDay    int
		IsActive      bool
		LastChargedAt *time.Time // nil until the first successful charge
		Version       int64
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// LedgerEntry is a single recorded charge.
	LedgerEntry struct {
		ID             int64
		OwnerID        uuid.UUID
		Kind           EntryKind
		OccurredAt     time.Time
		Amount         Money
		Label          string
		Category       Category
		Source         ChargeSource
		FixedExpenseID int64
		Period         string // YYYY-MM of OccurredAt
	}
)

var (
	ErrInvalidTriggerDay = errors.New("trigger day must be between 1 and 31")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyName         = errors.New("empty name")
	ErrNameTooLong       = errors.New("name too long (max 200 characters)")
	ErrMissingOwner      = errors.New("missing owner")
	ErrInvalidKind       = errors.New("invalid entry kind")
	ErrInvalidSource     = errors.New("invalid charge source")
	ErrZeroDate          = errors.New("date cannot be zero")

	ErrNotFound       = errors.New("not found")
	ErrInactive       = errors.New("fixed expense is inactive")
	ErrChargeConflict = errors.New("fixed expense was modified concurrently")
	ErrAlreadyCharged = errors.New("fixed expense already charged for period")
)

// AutoDebitLabel is the ledger label of a scheduled charge. The idempotency
// lookup matches on it exactly.
func AutoDebitLabel(name string) string {
	return autoDebitPrefix + name
}

// ManualDebitLabel is the ledger label of an operator-triggered charge.
func ManualDebitLabel(name string) string {
	return manualDebitPrefix + name
}

// MonthBounds returns the first and last instant of t's month, in t's location.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// InMonth reports whether t falls in the same calendar month as ref.
// t is compared in ref's location.
func InMonth(t, ref time.Time) bool {
	start, end := MonthBounds(ref)
	return !t.Before(start) && !t.After(end)
}

// DaysInMonth returns the number of days of t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// PeriodOf returns the YYYY-MM period key of t.
func PeriodOf(t time.Time) string {
	return t.Format(periodLayout)
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (fe FixedExpense) Validate() error {
	if fe.OwnerID == uuid.Nil {
		return ErrMissingOwner
	}
	if len(strings.TrimSpace(fe.Name)) == 0 {
		return ErrEmptyName
	}
	if len(fe.Name) > maxNameLength {
		return ErrNameTooLong
	}
	if err := fe.Amount.Validate(); err != nil {
		return err
	}
	if fe.TriggerDay < 1 || fe.TriggerDay > 31 {
		return ErrInvalidTriggerDay
	}
	return nil
}

// ChargedIn reports whether the last charge falls in today's month.
func (fe FixedExpense) ChargedIn(today time.Time) bool {
	return fe.LastChargedAt != nil && InMonth(*fe.LastChargedAt, today)
}

func (e LedgerEntry) Validate() error {
	if e.OwnerID == uuid.Nil {
		return ErrMissingOwner
	}
	if e.OccurredAt.IsZero() {
		return ErrZeroDate
	}
	if strings.TrimSpace(e.Label) == "" {
		return ErrEmptyName
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Kind != KindExpense {
		return ErrInvalidKind
	}
	switch e.Source {
	case SourceAuto, SourceManual:
	default:
		return ErrInvalidSource
	}
	return nil
}

// NewCharge builds the ledger entry produced by charging fe at the given time.
func NewCharge(fe FixedExpense, source ChargeSource, at time.Time) LedgerEntry {
	label := AutoDebitLabel(fe.Name)
	if source == SourceManual {
		label = ManualDebitLabel(fe.Name)
	}
	return LedgerEntry{
		OwnerID:        fe.OwnerID,
		Kind:           KindExpense,
		OccurredAt:     at,
		Amount:         fe.Amount,
		Label:          label,
		Category:       CategoryEssential,
		Source:         source,
		FixedExpenseID: fe.ID,
		Period:         PeriodOf(at),
	}
}
