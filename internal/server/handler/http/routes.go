// Package http provides HTTP routing and handlers for the POSVault API.
package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phessophissy/POSVault/internal/middleware"
)

// maxBodyBytes bounds every request body. The largest valid body is a
// proposal at the default title and description limits.
const maxBodyBytes = 32 << 10

// Handlers groups the API handlers mounted by NewRouter.
type Handlers struct {
	Register   *RegisterHandler
	Vault      *VaultHandler
	Ledger     *LedgerHandler
	Governance *GovernanceHandler
	Events     *EventsHandler
}

// NewRouter constructs the HTTP handler serving the POSVault API. The caller
// of every route except registration is the Common Name of its client
// certificate.
//
// Middleware chain (applied in order):
//  1. RequestSize(maxBodyBytes) caps request bodies
//  2. AllowContentType("application/json") rejects non-JSON bodies
//  3. WithRequestLogging(logger) logs requests
//  4. CertAuth enforces TLS client certificate auth
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestSize(maxBodyBytes))
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.CertAuth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register.Register)

		r.Route("/vault", func(r chi.Router) {
			r.Get("/", h.Vault.State)
			r.Get("/accounts/{principal}", h.Vault.Account)
			r.Post("/deposit", h.Vault.Deposit)
			r.Post("/withdraw", h.Vault.Withdraw)
			r.Post("/claim", h.Vault.Claim)
			r.Put("/rate", h.Vault.SetRate)
			r.Post("/pause", h.Vault.TogglePause)
			r.Post("/emergency-withdraw", h.Vault.EmergencyWithdraw)
			r.Get("/admins", h.Vault.Admins)
			r.Post("/admins", h.Vault.AddAdmin)
			r.Delete("/admins/{principal}", h.Vault.RemoveAdmin)
		})

		r.Route("/ledger/{asset}", func(r chi.Router) {
			r.Get("/", h.Ledger.Info)
			r.Get("/balances/{principal}", h.Ledger.Balance)
			r.Post("/transfer", h.Ledger.Transfer)
			r.Post("/mint", h.Ledger.Mint)
			r.Post("/burn", h.Ledger.Burn)
			r.Post("/minters", h.Ledger.AddMinter)
			r.Delete("/minters/{principal}", h.Ledger.RemoveMinter)
			r.Put("/minting", h.Ledger.SetMinting)
		})

		r.Route("/governance", func(r chi.Router) {
			r.Get("/params", h.Governance.Params)
			r.Get("/proposals", h.Governance.Count)
			r.Post("/proposals", h.Governance.Create)
			r.Get("/proposals/{id}", h.Governance.Get)
			r.Post("/proposals/{id}/votes", h.Governance.Vote)
			r.Get("/proposals/{id}/votes/{voter}", h.Governance.GetVote)
			r.Post("/proposals/{id}/execute", h.Governance.Execute)
			r.Get("/active/{principal}", h.Governance.Active)
		})

		r.Get("/events", h.Events.List)
	})

	return r
}
