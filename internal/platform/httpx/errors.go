// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Storage failures are surfaced as a generic 500 without leaking internals;
// callers are expected to have logged the full error already.
func RespondError(w http.ResponseWriter, err error) {
	var validation *shared.ValidationError
	var insufficiency *shared.InsufficiencyError
	switch {
	case errors.As(err, &validation):
		Problem(w, http.StatusBadRequest, "Validation Failed", validation.Reason)
	case errors.As(err, &insufficiency):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusConflict,
			Detail: insufficiency.Error(),
			Extra:  map[string]any{"shortfalls": insufficiency.Shortfalls},
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
