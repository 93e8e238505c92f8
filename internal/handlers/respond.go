package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/chefsplan/backend/internal/fault"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string     `json:"error"`
	Kind  fault.Kind `json:"kind,omitempty"`
}

// writeFault maps a fault kind to an HTTP status. Non-fault errors are
// internal by definition and never leak their message to the client.
func writeFault(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := fault.KindOf(err)
	if kind == "" {
		if log != nil {
			log.Error("internal error", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, statusFor(kind), errorResponse{Error: err.Error(), Kind: kind})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.Forbidden:
		return http.StatusForbidden
	case fault.InvalidState, fault.Duplicate, fault.AlreadyExists, fault.WindowClosed:
		return http.StatusConflict
	case fault.NotApplied, fault.PaymentMismatch:
		return http.StatusUnprocessableEntity
	case fault.TooEarly:
		return http.StatusTooEarly
	case fault.TransferFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// extractShiftID parses the shift id from the URL path.
// Supports paths like /api/v1/shifts/{id} and /api/v1/shifts/{id}/apply.
func extractShiftID(r *http.Request, prefix string) (int64, bool) {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
