package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chefsplan/backend/internal/middleware"
	"github.com/chefsplan/backend/internal/models"
)

// WalletService reads balances and credits deposits.
type WalletService interface {
	GetByAddress(ctx context.Context, addr models.Address) (*models.Wallet, error)
	Deposit(ctx context.Context, addr models.Address, amountCents int64) (int64, error)
}

// WalletHandler serves /api/v1/wallets endpoints.
type WalletHandler struct {
	Wallets WalletService
	Logger  *slog.Logger
}

// GetWallet handles GET /api/v1/wallets/{address}. Unseen addresses read as
// zero-balance wallets.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	addr := walletAddress(r)
	if addr.IsZero() {
		http.Error(w, `{"error":"invalid address"}`, http.StatusBadRequest)
		return
	}
	wallet, err := h.Wallets.GetByAddress(r.Context(), addr)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

type depositRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type depositResponse struct {
	Address      models.Address `json:"address"`
	BalanceCents int64          `json:"balance_cents"`
}

// Deposit handles POST /api/v1/wallets/{address}/deposit — the admin faucet.
// Funds have to enter the system somewhere; there is no real payment rail
// behind it.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	if middleware.AddressFromCtx(r.Context()).IsZero() {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	addr := walletAddress(r)
	if addr.IsZero() {
		http.Error(w, `{"error":"invalid address"}`, http.StatusBadRequest)
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusBadRequest)
		return
	}
	balance, err := h.Wallets.Deposit(r.Context(), addr, req.AmountCents)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{Address: addr, BalanceCents: balance})
}

// walletAddress pulls the address segment out of /api/v1/wallets/{address}[/...].
func walletAddress(r *http.Request) models.Address {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/wallets/")
	parts := strings.SplitN(path, "/", 2)
	return models.Address(parts[0])
}
