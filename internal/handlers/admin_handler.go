package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/chefsplan/backend/internal/middleware"
	"github.com/chefsplan/backend/internal/models"
)

// VaultAdmin rewires which principal the vault obeys.
type VaultAdmin interface {
	SetTrustedLedger(caller, ledger models.Address) error
}

// ReputationAdmin manages the authorized writer set.
type ReputationAdmin interface {
	Authorize(ctx context.Context, caller, addr models.Address) error
	Revoke(ctx context.Context, caller, addr models.Address) error
}

// AdminHandler serves /api/v1/admin endpoints. All routes sit behind the
// admin token middleware, which injects the admin address into context.
type AdminHandler struct {
	Vault      VaultAdmin
	Reputation ReputationAdmin
	Logger     *slog.Logger
}

type addressRequest struct {
	Address models.Address `json:"address"`
}

// SetTrustedLedger handles POST /api/v1/admin/vault/trusted-ledger.
func (h *AdminHandler) SetTrustedLedger(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromCtx(r.Context())
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Vault.SetTrustedLedger(caller, req.Address); err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	h.Logger.Info("trusted ledger rewired", "ledger", req.Address)
	writeJSON(w, http.StatusOK, map[string]models.Address{"trusted_ledger": req.Address})
}

// AuthorizeWriter handles POST /api/v1/admin/reputation/authorize.
func (h *AdminHandler) AuthorizeWriter(w http.ResponseWriter, r *http.Request) {
	h.writerChange(w, r, h.Reputation.Authorize, "authorized")
}

// RevokeWriter handles POST /api/v1/admin/reputation/revoke.
func (h *AdminHandler) RevokeWriter(w http.ResponseWriter, r *http.Request) {
	h.writerChange(w, r, h.Reputation.Revoke, "revoked")
}

func (h *AdminHandler) writerChange(w http.ResponseWriter, r *http.Request, op func(context.Context, models.Address, models.Address) error, result string) {
	caller := middleware.AddressFromCtx(r.Context())
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), caller, req.Address); err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": string(req.Address), "result": result})
}
