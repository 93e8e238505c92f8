package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chefsplan/backend/internal/middleware"
	"github.com/chefsplan/backend/internal/models"
)

// ShiftService is the subset of the shift ledger the handler needs.
type ShiftService interface {
	PostShift(ctx context.Context, caller models.Address, detailsRef string, paymentCents int64, startTime, endTime time.Time) (*models.Shift, error)
	ApplyToShift(ctx context.Context, caller models.Address, shiftID int64) error
	AcceptApplication(ctx context.Context, caller models.Address, shiftID int64, worker models.Address, fundsCents int64) error
	MarkComplete(ctx context.Context, caller models.Address, shiftID int64) error
	ConfirmCompletion(ctx context.Context, caller models.Address, shiftID int64) error
	DisputeShift(ctx context.Context, caller models.Address, shiftID int64, reason string) error
	CancelShift(ctx context.Context, caller models.Address, shiftID int64, reason string) error
	GetShift(ctx context.Context, shiftID int64) (*models.Shift, error)
	GetApplications(ctx context.Context, shiftID int64) ([]*models.Application, error)
	ListActive(ctx context.Context) ([]*models.Shift, error)
	ListByPoster(ctx context.Context, poster models.Address) ([]*models.Shift, error)
	ListByWorker(ctx context.Context, worker models.Address) ([]*models.Shift, error)
}

// ShiftHandler serves /api/v1/shifts endpoints.
type ShiftHandler struct {
	Shifts ShiftService
	Logger *slog.Logger
}

// --- POST /api/v1/shifts ---

type postShiftRequest struct {
	DetailsRef   string    `json:"details_ref"`
	PaymentCents int64     `json:"payment_cents"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

// PostShift handles POST /api/v1/shifts.
func (h *ShiftHandler) PostShift(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromCtx(r.Context())
	if caller.IsZero() {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req postShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	shift, err := h.Shifts.PostShift(r.Context(), caller, req.DetailsRef, req.PaymentCents, req.StartTime, req.EndTime)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

// --- GET /api/v1/shifts ---

// ListShifts handles GET /api/v1/shifts. Without query parameters it returns
// shifts still open for applications; ?poster= and ?worker= filter by party.
func (h *ShiftHandler) ListShifts(w http.ResponseWriter, r *http.Request) {
	var (
		shifts []*models.Shift
		err    error
	)
	switch {
	case r.URL.Query().Get("poster") != "":
		shifts, err = h.Shifts.ListByPoster(r.Context(), models.Address(r.URL.Query().Get("poster")))
	case r.URL.Query().Get("worker") != "":
		shifts, err = h.Shifts.ListByWorker(r.Context(), models.Address(r.URL.Query().Get("worker")))
	default:
		shifts, err = h.Shifts.ListActive(r.Context())
	}
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	if shifts == nil {
		shifts = []*models.Shift{}
	}
	writeJSON(w, http.StatusOK, shifts)
}

// --- GET /api/v1/shifts/{id} and subresources ---

// GetShift handles GET /api/v1/shifts/{id}.
func (h *ShiftHandler) GetShift(w http.ResponseWriter, r *http.Request) {
	id, ok := extractShiftID(r, "/api/v1/shifts/")
	if !ok {
		http.Error(w, `{"error":"invalid shift id"}`, http.StatusBadRequest)
		return
	}
	shift, err := h.Shifts.GetShift(r.Context(), id)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

// ListApplications handles GET /api/v1/shifts/{id}/applications.
func (h *ShiftHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	id, ok := extractShiftID(r, "/api/v1/shifts/")
	if !ok {
		http.Error(w, `{"error":"invalid shift id"}`, http.StatusBadRequest)
		return
	}
	apps, err := h.Shifts.GetApplications(r.Context(), id)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

type acceptRequest struct {
	Worker     models.Address `json:"worker"`
	FundsCents int64          `json:"funds_cents"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type statusResponse struct {
	ShiftID int64  `json:"shift_id"`
	Status  string `json:"status"`
}

// Action dispatches POST /api/v1/shifts/{id}/{action} to the matching
// lifecycle operation. The acting address always comes from the token, never
// from the request body.
func (h *ShiftHandler) Action(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromCtx(r.Context())
	if caller.IsZero() {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractShiftID(r, "/api/v1/shifts/")
	if !ok {
		http.Error(w, `{"error":"invalid shift id"}`, http.StatusBadRequest)
		return
	}
	action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	var err error
	var status string
	switch action {
	case "apply":
		err = h.Shifts.ApplyToShift(r.Context(), caller, id)
		status = models.ShiftStatusApplied
	case "accept":
		var req acceptRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		err = h.Shifts.AcceptApplication(r.Context(), caller, id, req.Worker, req.FundsCents)
		status = models.ShiftStatusAccepted
	case "complete":
		err = h.Shifts.MarkComplete(r.Context(), caller, id)
		status = models.ShiftStatusCompleted
	case "confirm":
		err = h.Shifts.ConfirmCompletion(r.Context(), caller, id)
		status = models.ShiftStatusCompleted
	case "dispute":
		var req reasonRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		err = h.Shifts.DisputeShift(r.Context(), caller, id, req.Reason)
		status = models.ShiftStatusDisputed
	case "cancel":
		var req reasonRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		err = h.Shifts.CancelShift(r.Context(), caller, id, req.Reason)
		status = models.ShiftStatusCancelled
	default:
		http.Error(w, `{"error":"unknown action"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ShiftID: id, Status: status})
}
