package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/recychain/recychain/internal/ledger"
)

// ErrMessageInternal is the generic message for 500 responses. Do not expose internal details to clients.
const ErrMessageInternal = "internal server error"

// writeJSON sends v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// JSONError sends a JSON error response with a single "error" field.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONValidationError sends a JSON error response with "error" and optional "fields" for field-level details.
// status is typically http.StatusBadRequest (400).
func JSONValidationError(w http.ResponseWriter, message string, fields map[string]string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	out := map[string]interface{}{"error": message}
	if len(fields) > 0 {
		out["fields"] = fields
	}
	json.NewEncoder(w).Encode(out)
}

// ledgerErrorBody is the error shape for lifecycle operations: a human
// message, a stable machine code, and whether retrying the same call can
// succeed.
type ledgerErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// WriteLedgerError maps ledger errors to HTTP statuses and the
// code/retryable error body. Unknown errors are logged and become 500s with
// the generic message.
func WriteLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := ledgerErrorBody{Error: ErrMessageInternal, Code: "internal"}

	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		status = http.StatusBadRequest
		body = ledgerErrorBody{Error: err.Error(), Code: "invalid_input"}
	case errors.Is(err, ledger.ErrMissingEvidence):
		status = http.StatusBadRequest
		body = ledgerErrorBody{Error: err.Error(), Code: "missing_evidence"}
	case errors.Is(err, ledger.ErrUnauthorized):
		status = http.StatusForbidden
		body = ledgerErrorBody{Error: err.Error(), Code: "unauthorized"}
	case errors.Is(err, ledger.ErrUserRejected):
		status = http.StatusForbidden
		body = ledgerErrorBody{Error: err.Error(), Code: "user_rejected"}
	case errors.Is(err, ledger.ErrAssetNotFound):
		status = http.StatusNotFound
		body = ledgerErrorBody{Error: err.Error(), Code: "asset_not_found"}
	case errors.Is(err, ledger.ErrDuplicateSerialNumber):
		status = http.StatusConflict
		body = ledgerErrorBody{Error: err.Error(), Code: "duplicate_serial_number"}
	case errors.Is(err, ledger.ErrInvalidTransition):
		status = http.StatusConflict
		body = ledgerErrorBody{Error: err.Error(), Code: "invalid_transition"}
	case errors.Is(err, ledger.ErrAuthTimeout):
		status = http.StatusGatewayTimeout
		body = ledgerErrorBody{Error: err.Error(), Code: "auth_timeout", Retryable: true}
	default:
		var re *ledger.RevertedError
		var te *ledger.TransportError
		switch {
		case errors.As(err, &re):
			status = http.StatusUnprocessableEntity
			body = ledgerErrorBody{Error: re.Reason, Code: "reverted"}
		case errors.As(err, &te):
			status = http.StatusBadGateway
			body = ledgerErrorBody{Error: "ledger transport unavailable", Code: "transport_error", Retryable: true}
			slog.Warn("ledger transport error", "op", te.Op, "error", te.Err)
		default:
			slog.Error("unhandled ledger error", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
