package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"hardline/internal/core"
	"hardline/internal/ports"
)

var _ ports.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// DSN builds the modernc connection string with the pragmas the repository
// depends on.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialising through one connection keeps
	// charge transactions from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateFixedExpense(ctx context.Context, fe core.FixedExpense) (core.FixedExpense, error) {
	if err := fe.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	row, err := r.queries.CreateFixedExpense(ctx, CreateFixedExpenseParams{
		OwnerID:     fe.OwnerID.String(),
		Name:        fe.Name,
		AmountCents: fe.Amount.Cents,
		TriggerDay:  int64(fe.TriggerDay),
		IsActive:    fe.IsActive,
		Now:         formatTime(r.now()),
	})
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("create fixed expense: %w", err)
	}

	slog.InfoContext(ctx, "Fixed expense saved to SQLite",
		"id", row.ID,
		"name", row.Name,
		"amount_cents", row.AmountCents,
		"trigger_day", row.TriggerDay)

	return toFixedExpense(row)
}

func (r *SQLiteRepository) GetFixedExpense(ctx context.Context, id int64) (core.FixedExpense, error) {
	row, err := r.queries.GetFixedExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FixedExpense{}, core.ErrNotFound
	}
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("get fixed expense %d: %w", id, err)
	}
	return toFixedExpense(row)
}

func (r *SQLiteRepository) ListFixedExpenses(ctx context.Context, owner uuid.UUID) ([]core.FixedExpense, error) {
	rows, err := r.queries.ListFixedExpensesByOwner(ctx, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list fixed expenses: %w", err)
	}
	return toFixedExpenses(rows)
}

func (r *SQLiteRepository) UpdateFixedExpense(ctx context.Context, fe core.FixedExpense) (core.FixedExpense, error) {
	if err := fe.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	row, err := r.queries.UpdateFixedExpense(ctx, UpdateFixedExpenseParams{
		ID:          fe.ID,
		OwnerID:     fe.OwnerID.String(),
		Name:        fe.Name,
		AmountCents: fe.Amount.Cents,
		TriggerDay:  int64(fe.TriggerDay),
		IsActive:    fe.IsActive,
		Now:         formatTime(r.now()),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.FixedExpense{}, core.ErrNotFound
	}
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("update fixed expense %d: %w", fe.ID, err)
	}
	return toFixedExpense(row)
}

func (r *SQLiteRepository) DeleteFixedExpense(ctx context.Context, owner uuid.UUID, id int64) error {
	n, err := r.queries.DeleteFixedExpense(ctx, id, owner.String())
	if err != nil {
		return fmt.Errorf("delete fixed expense %d: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	slog.InfoContext(ctx, "Fixed expense deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) ListDueFixedExpenses(ctx context.Context, days []int) ([]core.FixedExpense, error) {
	if len(days) == 0 {
		return nil, nil
	}
	args := make([]any, len(days))
	for i, d := range days {
		args[i] = d
	}
	query := `SELECT ` + fixedExpenseColumns + ` FROM fixed_expenses
WHERE is_active = 1 AND trigger_day IN (` + strings.TrimSuffix(strings.Repeat("?,", len(days)), ",") + `)
ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due fixed expenses: %w", err)
	}
	items, err := collectFixedExpenses(rows)
	if err != nil {
		return nil, fmt.Errorf("list due fixed expenses: %w", err)
	}
	return toFixedExpenses(items)
}

func (r *SQLiteRepository) TouchLastCharged(ctx context.Context, id int64, at time.Time) error {
	n, err := r.queries.TouchLastCharged(ctx, id, formatTime(at), formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("touch last charged %d: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) HasLedgerEntry(ctx context.Context, owner uuid.UUID, label string, from, to time.Time) (bool, error) {
	n, err := r.queries.CountLedgerEntriesByLabel(ctx, owner.String(), label, formatTime(from), formatTime(to))
	if err != nil {
		return false, fmt.Errorf("find ledger entry: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListLedgerEntries(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]core.LedgerEntry, error) {
	rows, err := r.queries.ListLedgerEntries(ctx, owner.String(), formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	entries := make([]core.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		e, err := toLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RecordCharge advances last_charged_at and inserts the ledger entry in one
// transaction.
func (r *SQLiteRepository) RecordCharge(ctx context.Context, p ports.ChargeParams) (core.LedgerEntry, error) {
	if err := p.Entry.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("begin charge transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	now := formatTime(r.now())

	n, err := q.AdvanceLastCharged(ctx, p.Entry.FixedExpenseID, formatTime(p.ChargedAt), now, p.ExpectedVersion)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("advance last charged: %w", err)
	}
	if n == 0 {
		if _, err := q.GetFixedExpense(ctx, p.Entry.FixedExpenseID); errors.Is(err, sql.ErrNoRows) {
			return core.LedgerEntry{}, core.ErrNotFound
		}
		return core.LedgerEntry{}, core.ErrChargeConflict
	}

	row, err := q.InsertLedgerEntry(ctx, InsertLedgerEntryParams{
		OwnerID:        p.Entry.OwnerID.String(),
		Kind:           string(p.Entry.Kind),
		OccurredAt:     formatTime(p.Entry.OccurredAt),
		AmountCents:    p.Entry.Amount.Cents,
		Label:          p.Entry.Label,
		Category:       string(p.Entry.Category),
		Source:         string(p.Entry.Source),
		FixedExpenseID: sql.NullInt64{Int64: p.Entry.FixedExpenseID, Valid: p.Entry.FixedExpenseID != 0},
		Period:         p.Entry.Period,
		Now:            now,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.LedgerEntry{}, core.ErrAlreadyCharged
		}
		return core.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("commit charge: %w", err)
	}

	slog.InfoContext(ctx, "Charge saved to SQLite",
		"ledger_id", row.ID,
		"fixed_expense_id", p.Entry.FixedExpenseID,
		"label", row.Label,
		"amount_cents", row.AmountCents,
		"period", row.Period)

	return toLedgerEntry(row)
}

// RecordChargeEvent stores an audited event. It reports false when the message
// id was already recorded.
func (r *SQLiteRepository) RecordChargeEvent(ctx context.Context, ev ChargeEvent) (bool, error) {
	if ev.ReceivedAt == "" {
		ev.ReceivedAt = formatTime(r.now())
	}
	n, err := r.queries.InsertChargeEvent(ctx, ev)
	if err != nil {
		return false, fmt.Errorf("insert charge event: %w", err)
	}
	return n > 0, nil
}

// CountChargeEvents returns how many audited events of eventType exist.
func (r *SQLiteRepository) CountChargeEvents(ctx context.Context, eventType string) (int64, error) {
	n, err := r.queries.CountChargeEvents(ctx, eventType)
	if err != nil {
		return 0, fmt.Errorf("count charge events: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toFixedExpense(row FixedExpenseRow) (core.FixedExpense, error) {
	owner, err := uuid.Parse(row.OwnerID)
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("parse owner id of fixed expense %d: %w", row.ID, err)
	}
	fe := core.FixedExpense{
		ID:         row.ID,
		OwnerID:    owner,
		Name:       row.Name,
		Amount:     core.Money{Cents: row.AmountCents},
		TriggerDay: int(row.TriggerDay),
		IsActive:   row.IsActive,
		Version:    row.Version,
	}
	if row.LastChargedAt.Valid {
		t, err := parseTime(row.LastChargedAt.String)
		if err != nil {
			return core.FixedExpense{}, fmt.Errorf("parse last_charged_at of fixed expense %d: %w", row.ID, err)
		}
		fe.LastChargedAt = &t
	}
	if fe.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return core.FixedExpense{}, fmt.Errorf("parse created_at of fixed expense %d: %w", row.ID, err)
	}
	if fe.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return core.FixedExpense{}, fmt.Errorf("parse updated_at of fixed expense %d: %w", row.ID, err)
	}
	return fe, nil
}

func toFixedExpenses(rows []FixedExpenseRow) ([]core.FixedExpense, error) {
	out := make([]core.FixedExpense, 0, len(rows))
	for _, row := range rows {
		fe, err := toFixedExpense(row)
		if err != nil {
			return nil, err
		}
		out = append(out, fe)
	}
	return out, nil
}

func toLedgerEntry(row LedgerEntryRow) (core.LedgerEntry, error) {
	owner, err := uuid.Parse(row.OwnerID)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("parse owner id of ledger entry %d: %w", row.ID, err)
	}
	occurred, err := parseTime(row.OccurredAt)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("parse occurred_at of ledger entry %d: %w", row.ID, err)
	}
	return core.LedgerEntry{
		ID:             row.ID,
		OwnerID:        owner,
		Kind:           core.EntryKind(row.Kind),
		OccurredAt:     occurred,
		Amount:         core.Money{Cents: row.AmountCents},
		Label:          row.Label,
		Category:       core.Category(row.Category),
		Source:         core.ChargeSource(row.Source),
		FixedExpenseID: row.FixedExpenseID.Int64,
		Period:         row.Period,
	}, nil
}
