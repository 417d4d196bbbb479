package http

import (
	"net/http"

	"github.com/google/uuid"

	applog "hardline/internal/log"
)

// handleRunAutoDebit runs the scheduler for one day on operator request. The
// run covers every owner; repeating it for the same day only adds skips.
func (s *Server) handleRunAutoDebit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.processor == nil {
		ServiceUnavailableError("auto-debit is not configured").Write(w, r)
		return
	}

	day, err := ParseRunDate(r.URL.Query(), s.now(), s.loc)
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "Auto-debit run requested",
		applog.FieldComponent, applog.ComponentAutoDebit,
		applog.FieldOwnerID, ownerFromContext(ctx),
		"date", day.Format(dateLayout))

	result, err := s.processor.RunDailyCharges(ctx, day)
	if result.Succeeded > 0 {
		s.invalidateSummaries(uuid.Nil)
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Auto-debit run failed",
			applog.FieldComponent, applog.ComponentAutoDebit,
			applog.FieldError, err)
		InternalServerError("auto-debit run failed").Write(w, r)
		return
	}

	NewResponse().JSON(RunResponse{
		Date:            day.Format(dateLayout),
		ChargeRunResult: result,
	}).Write(w, r)
}
