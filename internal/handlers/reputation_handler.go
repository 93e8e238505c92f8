package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chefsplan/backend/internal/models"
)

// ReputationService is the read side of the reputation ledger.
type ReputationService interface {
	GetReputation(ctx context.Context, subject models.Address) (*models.ReputationRecord, error)
	GetHistory(ctx context.Context, subject models.Address) ([]*models.Rating, error)
}

// ReputationHandler serves /api/v1/reputation endpoints. Reads are public.
type ReputationHandler struct {
	Reputation ReputationService
	Logger     *slog.Logger
}

// GetReputation handles GET /api/v1/reputation/{address} and
// GET /api/v1/reputation/{address}/history.
func (h *ReputationHandler) GetReputation(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/reputation/")
	parts := strings.SplitN(path, "/", 2)
	addr := models.Address(parts[0])
	if addr.IsZero() {
		http.Error(w, `{"error":"invalid address"}`, http.StatusBadRequest)
		return
	}

	if len(parts) == 2 && parts[1] == "history" {
		history, err := h.Reputation.GetHistory(r.Context(), addr)
		if err != nil {
			writeFault(w, h.Logger, err)
			return
		}
		if history == nil {
			history = []*models.Rating{}
		}
		writeJSON(w, http.StatusOK, history)
		return
	}

	rec, err := h.Reputation.GetReputation(r.Context(), addr)
	if err != nil {
		writeFault(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
