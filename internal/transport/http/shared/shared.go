// Package shared centralizes JSON response writing for all handler packages
// so error envelopes and status mapping stay consistent across modules.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "paylink/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP response. Non-domain
// errors become opaque 500s so internals never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusOf(code)

	msg := ""
	var de *dErrors.Error
	if errors.As(err, &de) && status < http.StatusInternalServerError {
		msg = de.Message()
	}

	WriteJSON(w, status, ErrorResponse{Error: string(code), Message: msg})
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeConcurrentModification,
		dErrors.CodeInvalidTransition, dErrors.CodeFrozenByDispute:
		return http.StatusConflict
	case dErrors.CodeInsufficientJustification, dErrors.CodeSplitExceedsEscrow,
		dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case dErrors.CodePartialSwapFailure, dErrors.CodeSettlementFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
