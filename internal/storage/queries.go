package storage

import (
	"context"
	"database/sql"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// FixedExpenseRow mirrors the fixed_expenses table.
type FixedExpenseRow struct {
	ID            int64
	OwnerID       string
	Name          string
	AmountCents   int64
	TriggerDay    int64
	IsActive      bool
	LastChargedAt sql.NullString
	Version       int64
	CreatedAt     string
	UpdatedAt     string
}

// LedgerEntryRow mirrors the ledger_entries table.
type LedgerEntryRow struct {
	ID             int64
	OwnerID        string
	Kind           string
	OccurredAt     string
	AmountCents    int64
	Label          string
	Category       string
	Source         string
	FixedExpenseID sql.NullInt64
	Period         string
	CreatedAt      string
}

// ChargeEvent is one audited charge message.
type ChargeEvent struct {
	MessageID  string
	EventType  string
	OwnerID    sql.NullString
	Payload    string
	ReceivedAt string
}

const fixedExpenseColumns = `id, owner_id, name, amount_cents, trigger_day, is_active, last_charged_at, version, created_at, updated_at`

func scanFixedExpense(row interface{ Scan(...any) error }) (FixedExpenseRow, error) {
	var i FixedExpenseRow
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Name,
		&i.AmountCents,
		&i.TriggerDay,
		&i.IsActive,
		&i.LastChargedAt,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectFixedExpenses(rows *sql.Rows) ([]FixedExpenseRow, error) {
	defer rows.Close()
	var items []FixedExpenseRow
	for rows.Next() {
		i, err := scanFixedExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type CreateFixedExpenseParams struct {
	OwnerID     string
	Name        string
	AmountCents int64
	TriggerDay  int64
	IsActive    bool
	Now         string
}

const createFixedExpense = `INSERT INTO fixed_expenses (owner_id, name, amount_cents, trigger_day, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + fixedExpenseColumns

func (q *Queries) CreateFixedExpense(ctx context.Context, arg CreateFixedExpenseParams) (FixedExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, createFixedExpense,
		arg.OwnerID,
		arg.Name,
		arg.AmountCents,
		arg.TriggerDay,
		arg.IsActive,
		arg.Now,
		arg.Now,
	)
	return scanFixedExpense(row)
}

const getFixedExpense = `SELECT ` + fixedExpenseColumns + ` FROM fixed_expenses WHERE id = ?`

func (q *Queries) GetFixedExpense(ctx context.Context, id int64) (FixedExpenseRow, error) {
	return scanFixedExpense(q.db.QueryRowContext(ctx, getFixedExpense, id))
}

const listFixedExpensesByOwner = `SELECT ` + fixedExpenseColumns + ` FROM fixed_expenses
WHERE owner_id = ?
ORDER BY trigger_day, id`

func (q *Queries) ListFixedExpensesByOwner(ctx context.Context, ownerID string) ([]FixedExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listFixedExpensesByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	return collectFixedExpenses(rows)
}

type UpdateFixedExpenseParams struct {
	ID          int64
	OwnerID     string
	Name        string
	AmountCents int64
	TriggerDay  int64
	IsActive    bool
	Now         string
}

const updateFixedExpense = `UPDATE fixed_expenses
SET name = ?, amount_cents = ?, trigger_day = ?, is_active = ?, version = version + 1, updated_at = ?
WHERE id = ? AND owner_id = ?
RETURNING ` + fixedExpenseColumns

func (q *Queries) UpdateFixedExpense(ctx context.Context, arg UpdateFixedExpenseParams) (FixedExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, updateFixedExpense,
		arg.Name,
		arg.AmountCents,
		arg.TriggerDay,
		arg.IsActive,
		arg.Now,
		arg.ID,
		arg.OwnerID,
	)
	return scanFixedExpense(row)
}

const deleteFixedExpense = `DELETE FROM fixed_expenses WHERE id = ? AND owner_id = ?`

func (q *Queries) DeleteFixedExpense(ctx context.Context, id int64, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteFixedExpense, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const touchLastCharged = `UPDATE fixed_expenses
SET last_charged_at = ?, version = version + 1, updated_at = ?
WHERE id = ?`

func (q *Queries) TouchLastCharged(ctx context.Context, id int64, at, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, touchLastCharged, at, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const advanceLastCharged = `UPDATE fixed_expenses
SET last_charged_at = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`

// AdvanceLastCharged is the compare-and-set half of a charge. Zero rows
// affected means the record is gone or its version moved on.
func (q *Queries) AdvanceLastCharged(ctx context.Context, id int64, at, now string, expectedVersion int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, advanceLastCharged, at, now, id, expectedVersion)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type InsertLedgerEntryParams struct {
	OwnerID        string
	Kind           string
	OccurredAt     string
	AmountCents    int64
	Label          string
	Category       string
	Source         string
	FixedExpenseID sql.NullInt64
	Period         string
	Now            string
}

const ledgerEntryColumns = `id, owner_id, kind, occurred_at, amount_cents, label, category, source, fixed_expense_id, period, created_at`

func scanLedgerEntry(row interface{ Scan(...any) error }) (LedgerEntryRow, error) {
	var i LedgerEntryRow
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Kind,
		&i.OccurredAt,
		&i.AmountCents,
		&i.Label,
		&i.Category,
		&i.Source,
		&i.FixedExpenseID,
		&i.Period,
		&i.CreatedAt,
	)
	return i, err
}

const insertLedgerEntry = `INSERT INTO ledger_entries (owner_id, kind, occurred_at, amount_cents, label, category, source, fixed_expense_id, period, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + ledgerEntryColumns

func (q *Queries) InsertLedgerEntry(ctx context.Context, arg InsertLedgerEntryParams) (LedgerEntryRow, error) {
	row := q.db.QueryRowContext(ctx, insertLedgerEntry,
		arg.OwnerID,
		arg.Kind,
		arg.OccurredAt,
		arg.AmountCents,
		arg.Label,
		arg.Category,
		arg.Source,
		arg.FixedExpenseID,
		arg.Period,
		arg.Now,
	)
	return scanLedgerEntry(row)
}

const countLedgerEntriesByLabel = `SELECT COUNT(*) FROM ledger_entries
WHERE owner_id = ? AND label = ? AND occurred_at >= ? AND occurred_at <= ?`

func (q *Queries) CountLedgerEntriesByLabel(ctx context.Context, ownerID, label, from, to string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countLedgerEntriesByLabel, ownerID, label, from, to).Scan(&n)
	return n, err
}

const listLedgerEntries = `SELECT ` + ledgerEntryColumns + ` FROM ledger_entries
WHERE owner_id = ? AND occurred_at >= ? AND occurred_at <= ?
ORDER BY occurred_at, id`

func (q *Queries) ListLedgerEntries(ctx context.Context, ownerID, from, to string) ([]LedgerEntryRow, error) {
	rows, err := q.db.QueryContext(ctx, listLedgerEntries, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerEntryRow
	for rows.Next() {
		i, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertChargeEvent = `INSERT INTO charge_events (message_id, event_type, owner_id, payload, received_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (message_id) DO NOTHING`

func (q *Queries) InsertChargeEvent(ctx context.Context, arg ChargeEvent) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertChargeEvent,
		arg.MessageID,
		arg.EventType,
		arg.OwnerID,
		arg.Payload,
		arg.ReceivedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countChargeEvents = `SELECT COUNT(*) FROM charge_events WHERE event_type = ?`

func (q *Queries) CountChargeEvents(ctx context.Context, eventType string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countChargeEvents, eventType).Scan(&n)
	return n, err
}
