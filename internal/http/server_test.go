package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"hardline/internal/core"
	"hardline/internal/services"
	"hardline/internal/storage/memory"
)

type testEnv struct {
	srv   *Server
	store *memory.Store
	owner uuid.UUID
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.New()
	owner := uuid.New()
	now := time.Date(2025, time.November, 1, 9, 30, 0, 0, time.UTC)

	ledger := services.NewLedgerService(store, nil)
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	opts.Store = store
	if opts.Operators == nil {
		opts.Operators = []uuid.UUID{owner}
	}
	if opts.Processor == nil {
		opts.Processor = services.NewAutoDebitProcessor(store, services.NewChargeGuard(store), ledger, nil)
	}
	if opts.ManualCharger == nil {
		opts.ManualCharger = services.NewManualCharger(store, ledger, opts.Now)
	}

	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, owner: owner}
}

func (e *testEnv) do(t *testing.T, method, path string, owner uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if owner != uuid.Nil {
		req.Header.Set(UserIDHeader, owner.String())
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (e *testEnv) createRent(t *testing.T) FixedExpenseResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/fixed-expenses", e.owner,
		`{"name":"Rent","amount":8500,"trigger_day":1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decode[FixedExpenseResponse](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, uuid.Nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}

	notReady := newTestEnv(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rr := notReady.do(t, http.MethodGet, "/readyz", uuid.Nil, "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestAPIRequiresUserID(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/fixed-expenses", uuid.Nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/fixed-expenses", nil)
	req.Header.Set(UserIDHeader, "not-a-uuid")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
	body := decode[ErrorBody](t, rr)
	if body.RequestID == "" || body.RequestID != rr.Header().Get("X-Request-ID") {
		t.Errorf("error body request id %q, header %q", body.RequestID, rr.Header().Get("X-Request-ID"))
	}
}

func TestCreateFixedExpenseValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"unknown field", `{"name":"Rent","amount":1,"trigger_day":1,"color":"red"}`, http.StatusBadRequest},
		{"malformed JSON", `{"name":`, http.StatusBadRequest},
		{"two objects", `{"name":"Rent","amount":1,"trigger_day":1}{}`, http.StatusBadRequest},
		{"missing name", `{"amount":1,"trigger_day":1}`, http.StatusUnprocessableEntity},
		{"trigger day zero", `{"name":"Rent","amount":1,"trigger_day":0}`, http.StatusUnprocessableEntity},
		{"trigger day 32", `{"name":"Rent","amount":1,"trigger_day":32}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"name":"Rent","amount":-5,"trigger_day":1}`, http.StatusUnprocessableEntity},
		{"missing amount", `{"name":"Rent","trigger_day":1}`, http.StatusUnprocessableEntity},
		{"string amount", `{"name":"Gym","amount":"29.90","trigger_day":5}`, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/fixed-expenses", env.owner, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestFixedExpenseCRUD(t *testing.T) {
	env := newTestEnv(t, Options{})

	created := env.createRent(t)
	if created.AmountCents != 850000 || created.Amount != "8500.00" || !created.IsActive || created.LastChargedAt != nil {
		t.Fatalf("unexpected created record %+v", created)
	}
	path := "/api/fixed-expenses/" + itoa64(created.ID)

	rr := env.do(t, http.MethodGet, path, env.owner, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}

	stranger := uuid.New()
	if rr := env.do(t, http.MethodGet, path, stranger, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("stranger get status=%d, want 404", rr.Code)
	}
	list := decode[map[string][]FixedExpenseResponse](t, env.do(t, http.MethodGet, "/api/fixed-expenses", stranger, ""))
	if len(list["fixed_expenses"]) != 0 {
		t.Fatalf("stranger sees %d records", len(list["fixed_expenses"]))
	}

	rr = env.do(t, http.MethodPut, path, env.owner, `{"name":"Rent","amount":"9000","trigger_day":3,"is_active":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	updated := decode[FixedExpenseResponse](t, rr)
	if updated.AmountCents != 900000 || updated.TriggerDay != 3 || updated.IsActive || updated.Version <= created.Version {
		t.Fatalf("unexpected updated record %+v", updated)
	}

	if rr := env.do(t, http.MethodPut, path, stranger, `{"name":"x","amount":1,"trigger_day":1}`); rr.Code != http.StatusNotFound {
		t.Fatalf("stranger update status=%d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, path, stranger, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("stranger delete status=%d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, path, env.owner, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, path, env.owner, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/fixed-expenses/abc", env.owner, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d, want 400", rr.Code)
	}
}

func TestManualDebit(t *testing.T) {
	env := newTestEnv(t, Options{})
	rent := env.createRent(t)
	path := "/api/fixed-expenses/" + itoa64(rent.ID) + "/manual-debit"

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, path, env.owner, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("manual debit %d status=%d body=%s", i, rr.Code, rr.Body.String())
		}
		charged := decode[FixedExpenseResponse](t, rr)
		if charged.LastChargedAt == nil {
			t.Fatalf("last_charged_at not set")
		}
	}

	entries := env.store.Entries()
	if len(entries) != 2 {
		t.Fatalf("manual debits are not deduplicated: got %d entries", len(entries))
	}
	for _, e := range entries {
		if e.Label != "Manual debit: Rent" || e.Source != core.SourceManual {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	if rr := env.do(t, http.MethodPost, path, uuid.New(), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("stranger status=%d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/fixed-expenses/999/manual-debit", env.owner, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d, want 404", rr.Code)
	}

	rr := env.do(t, http.MethodPut, "/api/fixed-expenses/"+itoa64(rent.ID), env.owner,
		`{"name":"Rent","amount":8500,"trigger_day":1,"is_active":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, path, env.owner, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("inactive status=%d, want 400", rr.Code)
	}
	if body := decode[ErrorBody](t, rr); body.Error != "Manual debit failed" {
		t.Fatalf("error = %q", body.Error)
	}
	if len(env.store.Entries()) != 2 {
		t.Fatalf("inactive manual debit wrote an entry")
	}
}

func TestRunAutoDebit(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.createRent(t)

	rr := env.do(t, http.MethodPost, "/api/auto-debit/run?date=2025-11-01", env.owner, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("run status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[RunResponse](t, rr)
	if got.Date != "2025-11-01" || got.ChargeRunResult != (core.ChargeRunResult{Succeeded: 1}) {
		t.Fatalf("first run = %+v", got)
	}

	got = decode[RunResponse](t, env.do(t, http.MethodPost, "/api/auto-debit/run?date=2025-11-01", env.owner, ""))
	if got.ChargeRunResult != (core.ChargeRunResult{Skipped: 1}) {
		t.Fatalf("second run = %+v", got)
	}

	got = decode[RunResponse](t, env.do(t, http.MethodPost, "/api/auto-debit/run?date=2025-10-15", env.owner, ""))
	if got.ChargeRunResult != (core.ChargeRunResult{}) {
		t.Fatalf("past mid-month run = %+v", got)
	}

	// Without a date the run uses the server's current day.
	got = decode[RunResponse](t, env.do(t, http.MethodPost, "/api/auto-debit/run", env.owner, ""))
	if got.Date != "2025-11-01" || got.Skipped != 1 {
		t.Fatalf("default-date run = %+v", got)
	}

	if rr := env.do(t, http.MethodPost, "/api/auto-debit/run?date=11/01/2025", env.owner, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date status=%d, want 400", rr.Code)
	}
	if len(env.store.Entries()) != 1 {
		t.Fatalf("expected exactly one auto-debit entry, got %d", len(env.store.Entries()))
	}
}

func TestRunAutoDebit_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		operators  []uuid.UUID
		asOperator bool
		path       string
		wantStatus int
	}{
		{"tenant is not an operator", nil, false, "/api/auto-debit/run?date=2025-11-01", http.StatusForbidden},
		{"no operators configured", []uuid.UUID{}, true, "/api/auto-debit/run", http.StatusForbidden},
		{"tomorrow", nil, true, "/api/auto-debit/run?date=2025-11-02", http.StatusBadRequest},
		{"far future", nil, true, "/api/auto-debit/run?date=2099-12-01", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{Operators: tt.operators})
			env.createRent(t)

			caller := uuid.New()
			if tt.asOperator {
				caller = env.owner
			}
			rr := env.do(t, http.MethodPost, tt.path, caller, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if n := len(env.store.Entries()); n != 0 {
				t.Fatalf("rejected run wrote %d entries", n)
			}
		})
	}
}

func TestLedgerAndSummary(t *testing.T) {
	env := newTestEnv(t, Options{})
	rent := env.createRent(t)
	env.do(t, http.MethodPost, "/api/auto-debit/run?date=2025-11-01", env.owner, "")

	rr := env.do(t, http.MethodGet, "/api/ledger?year=2025&month=11", env.owner, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ledger status=%d", rr.Code)
	}
	ledger := decode[struct {
		Entries []LedgerEntryResponse `json:"entries"`
	}](t, rr)
	if len(ledger.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(ledger.Entries))
	}
	e := ledger.Entries[0]
	if e.Label != "Auto-debit: Rent" || e.Kind != "expense" || e.Category != "essential" || e.Period != "2025-11" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.FixedExpenseID == nil || *e.FixedExpenseID != rent.ID {
		t.Fatalf("fixed_expense_id = %v, want %d", e.FixedExpenseID, rent.ID)
	}

	rr = env.do(t, http.MethodGet, "/api/ledger/summary?year=2025&month=11", env.owner, "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first summary X-Cache=%q", rr.Header().Get("X-Cache"))
	}
	summary := decode[core.MonthSummary](t, rr)
	if summary.Total.Cents != 850000 || len(summary.ByLabel) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rr = env.do(t, http.MethodGet, "/api/ledger/summary?year=2025&month=11", env.owner, "")
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second summary X-Cache=%q", rr.Header().Get("X-Cache"))
	}

	// A manual debit invalidates the owner's cached summaries.
	env.do(t, http.MethodPost, "/api/fixed-expenses/"+itoa64(rent.ID)+"/manual-debit", env.owner, "")
	rr = env.do(t, http.MethodGet, "/api/ledger/summary?year=2025&month=11", env.owner, "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("summary after manual debit X-Cache=%q", rr.Header().Get("X-Cache"))
	}
	if summary := decode[core.MonthSummary](t, rr); summary.Total.Cents != 1700000 {
		t.Fatalf("total after manual debit = %d", summary.Total.Cents)
	}

	if rr := env.do(t, http.MethodGet, "/api/ledger?month=13", env.owner, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad month status=%d, want 400", rr.Code)
	}
	other := decode[struct {
		Entries []LedgerEntryResponse `json:"entries"`
	}](t, env.do(t, http.MethodGet, "/api/ledger?year=2025&month=11", uuid.New(), ""))
	if len(other.Entries) != 0 {
		t.Fatalf("ledger leaks across owners")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodGet, "/api/fixed-expenses", env.owner, ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodGet, "/api/fixed-expenses", env.owner, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After=%q", rr.Header().Get("Retry-After"))
	}

	// Health checks are not rate limited.
	if rr := env.do(t, http.MethodGet, "/healthz", uuid.Nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodGet, "/api/fixed-expenses?q=../../etc/passwd", env.owner, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodGet, "/nope", uuid.Nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type=%q", rr.Header().Get("Content-Type"))
	}
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}
