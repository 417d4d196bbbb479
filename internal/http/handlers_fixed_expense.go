package http

import (
	"errors"
	"net/http"
	"strconv"

	"hardline/internal/core"
	applog "hardline/internal/log"
)

func (s *Server) handleListFixedExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	list, err := s.store.ListFixedExpenses(ctx, owner)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list fixed expenses",
			applog.FieldOwnerID, owner,
			applog.FieldError, err)
		InternalServerError("failed to list fixed expenses").Write(w, r)
		return
	}

	out := make([]FixedExpenseResponse, 0, len(list))
	for _, fe := range list {
		out = append(out, toFixedExpenseResponse(fe))
	}
	NewResponse().JSON(map[string]any{"fixed_expenses": out}).Write(w, r)
}

func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	var req FixedExpenseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	fe, err := req.ToFixedExpense(owner)
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}

	created, err := s.store.CreateFixedExpense(ctx, fe)
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "Created fixed expense",
		applog.NewFields().
			WithOperation("create_fixed_expense").
			WithFixedExpense(created.ID, owner.String(), created.Amount.Cents).
			ToSlice()...)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/fixed-expenses/"+strconv.FormatInt(created.ID, 10)).
		JSON(toFixedExpenseResponse(created)).
		Write(w, r)
}

func (s *Server) handleGetFixedExpense(w http.ResponseWriter, r *http.Request) {
	fe, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(toFixedExpenseResponse(fe)).Write(w, r)
}

func (s *Server) handleUpdateFixedExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	id, err := ParseIDParam(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	var req FixedExpenseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	fe, err := req.ToFixedExpense(owner)
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}
	fe.ID = id

	updated, err := s.store.UpdateFixedExpense(ctx, fe)
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "Updated fixed expense",
		applog.NewFields().
			WithOperation("update_fixed_expense").
			WithFixedExpense(updated.ID, owner.String(), updated.Amount.Cents).
			ToSlice()...)
	NewResponse().JSON(toFixedExpenseResponse(updated)).Write(w, r)
}

func (s *Server) handleDeleteFixedExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	id, err := ParseIDParam(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	if err := s.store.DeleteFixedExpense(ctx, owner, id); err != nil {
		s.writeValidationError(w, r, err)
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "Deleted fixed expense",
		applog.FieldOperation, "delete_fixed_expense",
		applog.FieldFixedExpenseID, id,
		applog.FieldOwnerID, owner)
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

// handleManualDebit charges one fixed expense outside the schedule. Manual
// debits are never deduplicated.
func (s *Server) handleManualDebit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fe, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	if s.manual == nil || !s.manual.ManualCharge(ctx, fe.ID) {
		BadRequestError("Manual debit failed").Write(w, r)
		return
	}
	s.invalidateSummaries(fe.OwnerID)

	charged, err := s.store.GetFixedExpense(ctx, fe.ID)
	if err != nil {
		// The charge is stored; report the record as it was before.
		applog.FromContext(ctx).WarnContext(ctx, "Failed to reload fixed expense after manual debit",
			applog.FieldFixedExpenseID, fe.ID,
			applog.FieldError, err)
		charged = fe
	}
	NewResponse().JSON(toFixedExpenseResponse(charged)).Write(w, r)
}

// loadOwned loads the {id} fixed expense of the calling owner. Records of other
// owners are reported as not found.
func (s *Server) loadOwned(w http.ResponseWriter, r *http.Request) (core.FixedExpense, bool) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	id, err := ParseIDParam(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return core.FixedExpense{}, false
	}
	fe, err := s.store.GetFixedExpense(ctx, id)
	if err == nil && fe.OwnerID != owner {
		err = core.ErrNotFound
	}
	if err != nil {
		s.writeValidationError(w, r, err)
		return core.FixedExpense{}, false
	}
	return fe, true
}

// writeValidationError maps store and validation errors to 404, 422 or 500.
func (s *Server) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrNotFound) {
		NotFoundError("fixed expense not found").Write(w, r)
		return
	}
	if msg, ok := validationMessage(err); ok {
		UnprocessableEntityError(msg).Write(w, r)
		return
	}
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Fixed expense request failed",
		applog.FieldPath, r.URL.Path,
		applog.FieldError, err)
	InternalServerError("internal error").Write(w, r)
}
