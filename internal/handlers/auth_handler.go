package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/chefsplan/backend/internal/models"
)

// TokenIssuer mints bearer tokens for an address.
type TokenIssuer interface {
	Issue(addr models.Address) (string, error)
}

// AuthHandler serves /api/v1/auth endpoints. Addresses are self-asserted
// opaque identities; every privilege check downstream keys on relationships
// recorded in the ledgers, not on who holds an address.
type AuthHandler struct {
	Tokens TokenIssuer
	Logger *slog.Logger
}

type tokenRequest struct {
	Address models.Address `json:"address"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// MintToken handles POST /api/v1/auth/token.
func (h *AuthHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Address.IsZero() {
		http.Error(w, `{"error":"address is required"}`, http.StatusBadRequest)
		return
	}
	tok, err := h.Tokens.Issue(req.Address)
	if err != nil {
		h.Logger.Error("issue token", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}
