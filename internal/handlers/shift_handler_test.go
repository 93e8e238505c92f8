package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chefsplan/backend/internal/fault"
	"github.com/chefsplan/backend/internal/middleware"
	"github.com/chefsplan/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockShiftService records the last call and returns a configured error.
type mockShiftService struct {
	err    error
	shift  *models.Shift
	called string
	caller models.Address
	worker models.Address
	funds  int64
	reason string
}

func (m *mockShiftService) PostShift(_ context.Context, caller models.Address, detailsRef string, paymentCents int64, startTime, endTime time.Time) (*models.Shift, error) {
	m.called, m.caller = "post", caller
	if m.err != nil {
		return nil, m.err
	}
	return &models.Shift{
		ID:           7,
		Poster:       caller,
		DetailsRef:   detailsRef,
		PaymentCents: paymentCents,
		Status:       models.ShiftStatusPosted,
		StartTime:    startTime,
		EndTime:      endTime,
	}, nil
}

func (m *mockShiftService) ApplyToShift(_ context.Context, caller models.Address, _ int64) error {
	m.called, m.caller = "apply", caller
	return m.err
}

func (m *mockShiftService) AcceptApplication(_ context.Context, caller models.Address, _ int64, worker models.Address, funds int64) error {
	m.called, m.caller, m.worker, m.funds = "accept", caller, worker, funds
	return m.err
}

func (m *mockShiftService) MarkComplete(_ context.Context, caller models.Address, _ int64) error {
	m.called, m.caller = "complete", caller
	return m.err
}

func (m *mockShiftService) ConfirmCompletion(_ context.Context, caller models.Address, _ int64) error {
	m.called, m.caller = "confirm", caller
	return m.err
}

func (m *mockShiftService) DisputeShift(_ context.Context, caller models.Address, _ int64, reason string) error {
	m.called, m.caller, m.reason = "dispute", caller, reason
	return m.err
}

func (m *mockShiftService) CancelShift(_ context.Context, caller models.Address, _ int64, reason string) error {
	m.called, m.caller, m.reason = "cancel", caller, reason
	return m.err
}

func (m *mockShiftService) GetShift(context.Context, int64) (*models.Shift, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.shift, nil
}

func (m *mockShiftService) GetApplications(context.Context, int64) ([]*models.Application, error) {
	return nil, m.err
}

func (m *mockShiftService) ListActive(context.Context) ([]*models.Shift, error) {
	m.called = "active"
	return nil, m.err
}

func (m *mockShiftService) ListByPoster(_ context.Context, poster models.Address) ([]*models.Shift, error) {
	m.called, m.caller = "by-poster", poster
	return nil, m.err
}

func (m *mockShiftService) ListByWorker(_ context.Context, worker models.Address) ([]*models.Shift, error) {
	m.called, m.caller = "by-worker", worker
	return nil, m.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newShiftHandler(err error) (*ShiftHandler, *mockShiftService) {
	svc := &mockShiftService{err: err}
	return &ShiftHandler{Shifts: svc, Logger: slog.Default()}, svc
}

// asAddress sets the authenticated address into the request context.
func asAddress(r *http.Request, addr models.Address) *http.Request {
	return r.WithContext(middleware.WithAddress(r.Context(), addr))
}

// =====================================================================
// POST /api/v1/shifts
// =====================================================================

func TestPostShift_Created(t *testing.T) {
	h, svc := newShiftHandler(nil)

	body := `{
		"details_ref": "ipfs://menu-prep",
		"payment_cents": 12500,
		"start_time": "2026-09-10T09:00:00Z",
		"end_time": "2026-09-10T17:00:00Z"
	}`
	req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts", strings.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	h.PostShift(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var shift models.Shift
	if err := json.Unmarshal(rec.Body.Bytes(), &shift); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if shift.ID == 0 || shift.Poster != "alice" {
		t.Errorf("unexpected shift in response: %+v", shift)
	}
	if svc.caller != "alice" {
		t.Errorf("service saw caller %q, want alice", svc.caller)
	}
}

func TestPostShift_NoToken(t *testing.T) {
	h, _ := newShiftHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.PostShift(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPostShift_InvalidJSON(t *testing.T) {
	h, _ := newShiftHandler(nil)

	req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts", strings.NewReader(`{nope`)), "alice")
	rec := httptest.NewRecorder()
	h.PostShift(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// =====================================================================
// POST /api/v1/shifts/{id}/{action}
// =====================================================================

func TestAction_Dispatch(t *testing.T) {
	cases := []struct {
		action string
		body   string
	}{
		{"apply", ""},
		{"accept", `{"worker":"bob","funds_cents":12500}`},
		{"complete", ""},
		{"confirm", ""},
		{"dispute", `{"reason":"no-show"}`},
		{"cancel", `{"reason":"venue closed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			h, svc := newShiftHandler(nil)

			url := fmt.Sprintf("/api/v1/shifts/42/%s", tc.action)
			req := asAddress(httptest.NewRequest(http.MethodPost, url, strings.NewReader(tc.body)), "alice")
			rec := httptest.NewRecorder()

			h.Action(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if svc.called != tc.action {
				t.Errorf("dispatched to %q, want %q", svc.called, tc.action)
			}
			if svc.caller != "alice" {
				t.Errorf("service saw caller %q, want alice", svc.caller)
			}
		})
	}
}

func TestAction_AcceptPassesBody(t *testing.T) {
	h, svc := newShiftHandler(nil)

	body := `{"worker":"bob","funds_cents":12500}`
	req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts/42/accept", strings.NewReader(body)), "alice")
	rec := httptest.NewRecorder()
	h.Action(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.worker != "bob" || svc.funds != 12500 {
		t.Errorf("accept saw worker=%q funds=%d", svc.worker, svc.funds)
	}
}

func TestAction_UnknownAction(t *testing.T) {
	h, _ := newShiftHandler(nil)

	req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts/42/promote", nil), "alice")
	rec := httptest.NewRecorder()
	h.Action(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAction_InvalidID(t *testing.T) {
	h, _ := newShiftHandler(nil)

	req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts/not-a-number/apply", nil), "alice")
	rec := httptest.NewRecorder()
	h.Action(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// =====================================================================
// Fault kind → HTTP status mapping
// =====================================================================

func TestFaultStatusMapping(t *testing.T) {
	cases := []struct {
		kind fault.Kind
		want int
	}{
		{fault.InvalidInput, http.StatusBadRequest},
		{fault.NotFound, http.StatusNotFound},
		{fault.Forbidden, http.StatusForbidden},
		{fault.InvalidState, http.StatusConflict},
		{fault.Duplicate, http.StatusConflict},
		{fault.AlreadyExists, http.StatusConflict},
		{fault.WindowClosed, http.StatusConflict},
		{fault.NotApplied, http.StatusUnprocessableEntity},
		{fault.PaymentMismatch, http.StatusUnprocessableEntity},
		{fault.TooEarly, http.StatusTooEarly},
		{fault.TransferFailed, http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			h, _ := newShiftHandler(fault.New(tc.kind, "boom"))

			req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts/42/apply", nil), "alice")
			rec := httptest.NewRecorder()
			h.Action(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("kind %s: expected %d, got %d", tc.kind, tc.want, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != tc.kind {
				t.Errorf("response kind = %s, want %s", resp.Kind, tc.kind)
			}
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h, _ := newShiftHandler(fmt.Errorf("pq: connection refused"))

	req := asAddress(httptest.NewRequest(http.MethodPost, "/api/v1/shifts/42/apply", nil), "alice")
	rec := httptest.NewRecorder()
	h.Action(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("internal error detail leaked to client")
	}
}

// =====================================================================
// GET /api/v1/shifts
// =====================================================================

func TestListShifts_Filters(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"/api/v1/shifts", "active"},
		{"/api/v1/shifts?poster=alice", "by-poster"},
		{"/api/v1/shifts?worker=bob", "by-worker"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			h, svc := newShiftHandler(nil)

			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			rec := httptest.NewRecorder()
			h.ListShifts(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if svc.called != tc.want {
				t.Errorf("dispatched to %q, want %q", svc.called, tc.want)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
				t.Errorf("empty list should encode as [], got %s", body)
			}
		})
	}
}

func TestGetShift(t *testing.T) {
	h, svc := newShiftHandler(nil)
	svc.shift = &models.Shift{ID: 42, Poster: "alice", Status: models.ShiftStatusPosted}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shifts/42", nil)
	rec := httptest.NewRecorder()
	h.GetShift(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var shift models.Shift
	if err := json.Unmarshal(rec.Body.Bytes(), &shift); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if shift.ID != 42 {
		t.Errorf("shift id = %d, want 42", shift.ID)
	}
}
