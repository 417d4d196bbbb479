package http

import (
	"fmt"
	"net/http"

	"hardline/internal/core"
	applog "hardline/internal/log"
)

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	params, err := ParseMonthParams(r.URL.Query(), s.now().In(s.loc))
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	from, to := params.Bounds(s.loc)

	entries, err := s.store.ListLedgerEntries(ctx, owner, from, to)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list ledger entries",
			applog.FieldOwnerID, owner,
			applog.FieldError, err)
		InternalServerError("failed to list ledger entries").Write(w, r)
		return
	}

	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLedgerEntryResponse(e))
	}
	NewResponse().JSON(map[string]any{
		"year":    params.Year,
		"month":   params.Month,
		"entries": out,
	}).Write(w, r)
}

// handleLedgerSummary serves month totals per label, cached per owner and month.
func (s *Server) handleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	params, err := ParseMonthParams(r.URL.Query(), s.now().In(s.loc))
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}

	key := fmt.Sprintf("%s|%04d-%02d", owner, params.Year, params.Month)
	if summary, ok := s.summaryCache.Get(key); ok {
		NewResponse().Header("X-Cache", "HIT").JSON(summary).Write(w, r)
		return
	}

	from, to := params.Bounds(s.loc)
	entries, err := s.store.ListLedgerEntries(ctx, owner, from, to)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to summarize ledger",
			applog.FieldOwnerID, owner,
			applog.FieldError, err)
		InternalServerError("failed to summarize ledger").Write(w, r)
		return
	}

	summary := core.Summarize(params.Year, params.Month, entries)
	s.summaryCache.Set(key, summary)
	NewResponse().Header("X-Cache", "MISS").JSON(summary).Write(w, r)
}
