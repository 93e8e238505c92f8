package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chefsplan/backend/internal/handlers"
	"github.com/chefsplan/backend/internal/middleware"
	"github.com/chefsplan/backend/internal/models"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth       *handlers.AuthHandler
	Shifts     *handlers.ShiftHandler
	Escrows    *handlers.EscrowHandler
	Reputation *handlers.ReputationHandler
	Wallets    *handlers.WalletHandler
	Admin      *handlers.AdminHandler
}

// New returns an http.Handler serving the API under /api/v1.
// Reads are public; lifecycle actions require a bearer token; /admin routes
// require the admin token.
func New(h Handlers, tokens middleware.TokenValidator, adminTokenHash string, adminAddr models.Address, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	auth := middleware.AddressAuth(tokens)
	admin := middleware.AdminAuth(adminTokenHash, adminAddr)

	// identity
	mux.HandleFunc("POST "+base+"/auth/token", h.Auth.MintToken)

	// shifts
	mux.Handle("POST "+base+"/shifts", auth(http.HandlerFunc(h.Shifts.PostShift)))
	mux.HandleFunc("GET "+base+"/shifts", h.Shifts.ListShifts)
	mux.HandleFunc("GET "+base+"/shifts/{id}", h.Shifts.GetShift)
	mux.HandleFunc("GET "+base+"/shifts/{id}/applications", h.Shifts.ListApplications)
	mux.Handle("POST "+base+"/shifts/{id}/{action}", auth(http.HandlerFunc(h.Shifts.Action)))

	// escrows
	mux.HandleFunc("GET "+base+"/escrows/{id}", h.Escrows.GetEscrow)
	mux.Handle("POST "+base+"/escrows/{id}/auto-release", auth(http.HandlerFunc(h.Escrows.AutoRelease)))
	mux.Handle("POST "+base+"/escrows/{id}/emergency-withdraw", admin(http.HandlerFunc(h.Escrows.EmergencyWithdraw)))

	// reputation (public reads)
	mux.HandleFunc("GET "+base+"/reputation/{address}", h.Reputation.GetReputation)
	mux.HandleFunc("GET "+base+"/reputation/{address}/history", h.Reputation.GetReputation)

	// wallets
	mux.HandleFunc("GET "+base+"/wallets/{address}", h.Wallets.GetWallet)
	mux.Handle("POST "+base+"/wallets/{address}/deposit", admin(http.HandlerFunc(h.Wallets.Deposit)))

	// admin
	mux.Handle("POST "+base+"/admin/vault/trusted-ledger", admin(http.HandlerFunc(h.Admin.SetTrustedLedger)))
	mux.Handle("POST "+base+"/admin/reputation/authorize", admin(http.HandlerFunc(h.Admin.AuthorizeWriter)))
	mux.Handle("POST "+base+"/admin/reputation/revoke", admin(http.HandlerFunc(h.Admin.RevokeWriter)))

	// operational
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}
