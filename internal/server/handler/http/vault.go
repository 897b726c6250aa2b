package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phessophissy/POSVault/internal/middleware"
	"github.com/phessophissy/POSVault/internal/models"
)

// VaultService is the vault surface of the engine.
type VaultService interface {
	Deposit(ctx context.Context, caller models.Principal, amount uint64) error
	Withdraw(ctx context.Context, caller models.Principal) (*models.WithdrawResult, error)
	ClaimRewards(ctx context.Context, caller models.Principal) (uint64, error)
	SetRewardRate(ctx context.Context, caller models.Principal, rateBps uint32) error
	TogglePause(ctx context.Context, caller models.Principal) (bool, error)
	EmergencyWithdraw(ctx context.Context, caller models.Principal) (uint64, error)
	AddAdmin(ctx context.Context, caller, p models.Principal) error
	RemoveAdmin(ctx context.Context, caller, p models.Principal) error

	VaultState(ctx context.Context) (*models.VaultState, error)
	Account(ctx context.Context, p models.Principal) (*models.Account, error)
	VaultAdmins(ctx context.Context) ([]models.Principal, error)
}

// VaultHandler serves /api/vault.
type VaultHandler struct {
	Vault VaultService
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type rateRequest struct {
	RateBps uint32 `json:"rate_bps"`
}

type principalRequest struct {
	Principal models.Principal `json:"principal"`
}

// AccountResponse is a principal's view of the vault.
type AccountResponse = models.Account

// State returns the vault totals.
func (h *VaultHandler) State(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Vault.VaultState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// Account returns deposit, stats and pending reward of {principal}.
func (h *VaultHandler) Account(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Vault.Account(r.Context(), models.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Deposit locks the requested amount of the caller's base asset.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Vault.Deposit(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Withdraw closes the caller's deposit.
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	res, err := h.Vault.Withdraw(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Claim pays out the caller's pending reward.
func (h *VaultHandler) Claim(w http.ResponseWriter, r *http.Request) {
	reward, err := h.Vault.ClaimRewards(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"rewards": reward})
}

// SetRate changes the reward rate. Admins only.
func (h *VaultHandler) SetRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Vault.SetRewardRate(r.Context(), middleware.PrincipalFromContext(r.Context()), req.RateBps); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TogglePause flips the pause flag. Admins only.
func (h *VaultHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
	paused, err := h.Vault.TogglePause(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

// EmergencyWithdraw sweeps locked funds to the owner.
func (h *VaultHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	swept, err := h.Vault.EmergencyWithdraw(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": swept})
}

// Admins lists vault admins.
func (h *VaultHandler) Admins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.Vault.VaultAdmins(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Principal{"admins": admins})
}

// AddAdmin grants the admin role. Owner only.
func (h *VaultHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Vault.AddAdmin(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Principal); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveAdmin revokes the admin role of {principal}. Owner only.
func (h *VaultHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	p := models.Principal(chi.URLParam(r, "principal"))
	if err := h.Vault.RemoveAdmin(r.Context(), middleware.PrincipalFromContext(r.Context()), p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
