package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerJSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentAutoDebit, Output: &buf})

	logger.Info("charged", FieldFixedExpenseID, int64(7))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentAutoDebit {
		t.Fatalf("expected component %q, got %v", ComponentAutoDebit, rec[FieldComponent])
	}
	if rec[FieldFixedExpenseID] != float64(7) {
		t.Fatalf("expected fixed_expense_id 7, got %v", rec[FieldFixedExpenseID])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf, Component: "x"})
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should be written: %s", buf.String())
	}
}

func TestMiddlewareAndFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got component %q", got.Component())
	}

	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf, Component: ComponentHTTP})

	var seen *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(context.Context) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			seen.Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("expected http component logger in context")
	}
	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Fatalf("expected request id in log line: %s", buf.String())
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithComponent(ComponentAutoDebit).WithOperation(OpCharge).WithError(nil)
	if _, ok := f[FieldError]; ok {
		t.Fatalf("nil error should not add a field")
	}
	f.WithFixedExpense(3, "owner", 100)
	if len(f.ToSlice()) != 2*len(f) {
		t.Fatalf("ToSlice should flatten key/value pairs")
	}
}
