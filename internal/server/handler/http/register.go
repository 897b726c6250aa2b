package http

import (
	"context"
	"net/http"

	"github.com/phessophissy/POSVault/internal/models"
)

// Registry records new principals.
type Registry interface {
	RegisterPrincipal(ctx context.Context, name models.Principal) error
}

// Issuer signs client certificates whose Common Name is the principal.
type Issuer interface {
	Issue(p models.Principal) (certPEM, keyPEM []byte, err error)
}

// RegisterHandler handles HTTP requests for principal registration.
type RegisterHandler struct {
	Registry Registry
	Issuer   Issuer
}

// RegisterRequest represents the JSON payload for registration.
type RegisterRequest struct {
	// Principal is the name to register.
	Principal models.Principal `json:"principal"`
}

// RegisterResponse carries the PEM-encoded client certificate and key.
type RegisterResponse struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// Register issues a client certificate for a new principal and records it.
// Reserved and already registered names are rejected with 409.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil || req.Principal == "" {
		writeError(w, errInvalidRequest)
		return
	}

	certPEM, keyPEM, err := h.Issuer.Issue(req.Principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Registry.RegisterPrincipal(r.Context(), req.Principal); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{Cert: string(certPEM), Key: string(keyPEM)})
}
