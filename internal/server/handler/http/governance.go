package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phessophissy/POSVault/internal/governance"
	"github.com/phessophissy/POSVault/internal/middleware"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/service"
)

// GovernanceService is the governance surface of the engine.
type GovernanceService interface {
	CreateProposal(ctx context.Context, caller models.Principal, in service.ProposalInput) (uint64, error)
	Vote(ctx context.Context, caller models.Principal, id uint64, support bool) error
	ExecuteProposal(ctx context.Context, caller models.Principal, id uint64) (bool, error)
	ProposalStatus(ctx context.Context, id uint64) (*models.Proposal, models.ProposalStatus, error)
	VoteRecord(ctx context.Context, id uint64, voter models.Principal) (*models.VoteRecord, error)
	ProposalCount(ctx context.Context) (uint64, error)
	ActiveProposalOf(ctx context.Context, proposer models.Principal) (uint64, bool, error)
	GovernanceParams() governance.Params
}

// GovernanceHandler serves /api/governance.
type GovernanceHandler struct {
	Governance GovernanceService
}

type voteRequest struct {
	Support bool `json:"support"`
}

// ProposalResponse is a proposal with its derived status.
type ProposalResponse struct {
	*models.Proposal
	Status models.ProposalStatus `json:"status"`
}

// Params returns the governance parameters.
func (h *GovernanceHandler) Params(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Governance.GovernanceParams())
}

// Count returns how many proposals exist.
func (h *GovernanceHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.Governance.ProposalCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": n})
}

// Create submits a proposal from the caller.
func (h *GovernanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ProposalInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.Governance.CreateProposal(r.Context(), middleware.PrincipalFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

// Get returns proposal {id}.
func (h *GovernanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, status, err := h.Governance.ProposalStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProposalResponse{Proposal: p, Status: status})
}

// Vote records the caller's vote on proposal {id}.
func (h *GovernanceHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Governance.Vote(r.Context(), middleware.PrincipalFromContext(r.Context()), id, req.Support); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetVote returns the vote of {voter} on proposal {id}.
func (h *GovernanceHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.Governance.VoteRecord(r.Context(), id, models.Principal(chi.URLParam(r, "voter")))
	if err != nil {
		writeError(w, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Execute settles proposal {id}.
func (h *GovernanceHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	passed, err := h.Governance.ExecuteProposal(r.Context(), middleware.PrincipalFromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"passed": passed})
}

// Active returns the live proposal of {principal}, if any.
func (h *GovernanceHandler) Active(w http.ResponseWriter, r *http.Request) {
	id, ok, err := h.Governance.ActiveProposalOf(r.Context(), models.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": ok, "id": id})
}
