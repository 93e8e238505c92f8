package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/chefsplan/backend/internal/middleware"
	"github.com/chefsplan/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EscrowService is the subset of the vault the handler needs. The timeout
// paths take a transaction because they move funds.
type EscrowService interface {
	GetEscrow(ctx context.Context, shiftID int64) (*models.EscrowRecord, error)
	AutoRelease(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error
	EmergencyWithdraw(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error
}

// EscrowHandler serves /api/v1/escrows endpoints.
type EscrowHandler struct {
	Pool   TxBeginner
	Vault  EscrowService
	Logger *slog.Logger
}

// GetEscrow handles GET /api/v1/escrows/{shiftID}.
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := extractShiftID(r, "/api/v1/escrows/")
	if !ok {
		http.Error(w, `{"error":"invalid shift id"}`, http.StatusBadRequest)
		return
	}
	rec, err := h.Vault.GetEscrow(r.Context(), id)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// AutoRelease handles POST /api/v1/escrows/{shiftID}/auto-release. Any
// authenticated address may trigger it once the release deadline has passed.
func (h *EscrowHandler) AutoRelease(w http.ResponseWriter, r *http.Request) {
	h.withTx(w, r, h.Vault.AutoRelease)
}

// EmergencyWithdraw handles POST /api/v1/escrows/{shiftID}/emergency-withdraw.
// Reached only through the admin route, so the context address is the admin.
func (h *EscrowHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	h.withTx(w, r, h.Vault.EmergencyWithdraw)
}

func (h *EscrowHandler) withTx(w http.ResponseWriter, r *http.Request, op func(context.Context, pgx.Tx, models.Address, int64) error) {
	caller := middleware.AddressFromCtx(r.Context())
	if caller.IsZero() {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractShiftID(r, "/api/v1/escrows/")
	if !ok {
		http.Error(w, `{"error":"invalid shift id"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := op(r.Context(), tx, caller, id); err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	rec, err := h.Vault.GetEscrow(r.Context(), id)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
