// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/phessophissy/POSVault/internal/models"
)

type ctxKey string

const principalKey ctxKey = "principal"

// RegisterPath is served without a client certificate.
const RegisterPath = "/api/register"

// CertAuth is a middleware that enforces mutual TLS authentication.
//
// It checks whether the incoming HTTP request has a verified client
// certificate. RegisterPath is excluded so that new principals can obtain
// their first certificate.
//
// On success the certificate Common Name is stored in the request context
// as the calling principal.
func CertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RegisterPath {
			next.ServeHTTP(w, r)
			return
		}
		p := peerPrincipal(r)
		if p == "" {
			http.Error(w, "no client certificate provided", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, or "" if none.
func PrincipalFromContext(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalKey).(models.Principal)
	return p
}

func peerPrincipal(r *http.Request) models.Principal {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	return models.Principal(r.TLS.PeerCertificates[0].Subject.CommonName)
}
