package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phessophissy/POSVault/internal/middleware"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/service"
)

// LedgerService is the token ledger surface of the engine.
type LedgerService interface {
	Transfer(ctx context.Context, caller models.Principal, asset string, recipient models.Principal, amount uint64) error
	Mint(ctx context.Context, caller models.Principal, asset string, amount uint64, recipient models.Principal) error
	Burn(ctx context.Context, caller models.Principal, asset string, amount uint64) error
	AddMinter(ctx context.Context, caller models.Principal, asset string, p models.Principal) error
	RemoveMinter(ctx context.Context, caller models.Principal, asset string, p models.Principal) error
	SetMintingEnabled(ctx context.Context, caller models.Principal, asset string, enabled bool) error
	Ledger(ctx context.Context, asset string) (*service.LedgerInfo, error)
	Balance(ctx context.Context, asset string, p models.Principal) (uint64, error)
}

// LedgerHandler serves /api/ledger/{asset}.
type LedgerHandler struct {
	Ledger LedgerService
}

type transferRequest struct {
	Recipient models.Principal `json:"recipient"`
	Amount    uint64           `json:"amount"`
}

type mintingRequest struct {
	Enabled bool `json:"enabled"`
}

func asset(r *http.Request) string { return chi.URLParam(r, "asset") }

// Info returns supply, owner and minters of the asset.
func (h *LedgerHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.Ledger.Ledger(r.Context(), asset(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Balance returns the balance of {principal}.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p := models.Principal(chi.URLParam(r, "principal"))
	bal, err := h.Ledger.Balance(r.Context(), asset(r), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principal": p, "balance": bal})
}

// Transfer moves tokens from the caller to the recipient.
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	if err := h.Ledger.Transfer(r.Context(), caller, asset(r), req.Recipient, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mint creates tokens for the recipient. Minters only.
func (h *LedgerHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	if err := h.Ledger.Mint(r.Context(), caller, asset(r), req.Amount, req.Recipient); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Burn destroys the caller's tokens.
func (h *LedgerHandler) Burn(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Ledger.Burn(r.Context(), middleware.PrincipalFromContext(r.Context()), asset(r), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMinter grants the minter role. Owner only.
func (h *LedgerHandler) AddMinter(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	if err := h.Ledger.AddMinter(r.Context(), caller, asset(r), req.Principal); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMinter revokes the minter role of {principal}. Owner only.
func (h *LedgerHandler) RemoveMinter(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	p := models.Principal(chi.URLParam(r, "principal"))
	if err := h.Ledger.RemoveMinter(r.Context(), caller, asset(r), p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetMinting switches minting on or off. Owner only.
func (h *LedgerHandler) SetMinting(w http.ResponseWriter, r *http.Request) {
	var req mintingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.PrincipalFromContext(r.Context())
	if err := h.Ledger.SetMintingEnabled(r.Context(), caller, asset(r), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
