// Package http provides the HardLine JSON API.
//
// This file implements utilities for parsing and validating HTTP request data:
// caller identity, path ids, month and date query parameters and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hardline/internal/core"
)

const (
	// UserIDHeader carries the caller's owner id, set by the upstream gateway.
	UserIDHeader = "X-User-ID"

	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

var (
	errMissingUser   = errors.New("missing or invalid " + UserIDHeader + " header")
	errInvalidID     = errors.New("invalid id")
	errInvalidMonth  = errors.New("month must be between 1 and 12")
	errInvalidYear   = errors.New("invalid year")
	errInvalidDate   = errors.New("date must be formatted as YYYY-MM-DD")
	errFutureDate    = errors.New("date must not be after today")
	errTrailingInput = errors.New("request body must contain a single JSON object")
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// Bounds returns the first and last instant of the month in loc.
func (p MonthParams) Bounds(loc *time.Location) (time.Time, time.Time) {
	return core.MonthBounds(time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc))
}

// OwnerFromRequest returns the owner id carried by the X-User-ID header.
func OwnerFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if raw == "" {
		return uuid.Nil, errMissingUser
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errMissingUser
	}
	return id, nil
}

// ParseIDParam reads a positive integer chi URL parameter.
func ParseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, errInvalidID
	}
	return id, nil
}

// ParseMonthParams extracts year and month from query parameters. Missing
// values default to now's year and month; malformed values are an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, errInvalidYear
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, errInvalidMonth
		}
		params.Month = m
	}

	return params, nil
}

// ParseRunDate reads the optional date query parameter as a calendar day in
// loc. It defaults to now's day and rejects days after it. The result is
// midnight of that day.
func ParseRunDate(query url.Values, now time.Time, loc *time.Location) (time.Time, error) {
	n := now.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)

	v := strings.TrimSpace(query.Get("date"))
	if v == "" {
		return today, nil
	}
	d, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	if d.After(today) {
		return time.Time{}, errFutureDate
	}
	return d, nil
}

// DecodeJSON decodes a single JSON object from the request body into dst.
// Bodies over 1 MiB and unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingInput
	}
	return nil
}

// FixedExpenseRequest is the body of create and update requests. Amount is a
// decimal number of currency units, e.g. 8500 or "12.34".
type FixedExpenseRequest struct {
	Name       string      `json:"name"`
	Amount     json.Number `json:"amount"`
	TriggerDay int         `json:"trigger_day"`
	IsActive   *bool       `json:"is_active"`
}

// ToFixedExpense converts the request into a validated fixed expense owned by
// owner. IsActive defaults to true.
func (req FixedExpenseRequest) ToFixedExpense(owner uuid.UUID) (core.FixedExpense, error) {
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		return core.FixedExpense{}, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	fe := core.FixedExpense{
		OwnerID:    owner,
		Name:       sanitizeInput(req.Name),
		Amount:     core.Money{Cents: cents},
		TriggerDay: req.TriggerDay,
		IsActive:   active,
	}
	if err := fe.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	return fe, nil
}
