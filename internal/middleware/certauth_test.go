package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phessophissy/POSVault/internal/models"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func withPeer(req *http.Request, cn string) *http.Request {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
	return req
}

func TestCertAuth_RegisterPathBypass(t *testing.T) {
	dummy := &dummyHandler{}
	h := CertAuth(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", RegisterPath, nil)
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Error("expected next handler to be called for register path")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", rec.Code)
	}
	if p := PrincipalFromContext(dummy.ctx); p != "" {
		t.Errorf("expected no principal, got %q", p)
	}
}

func TestCertAuth_NoCertificate(t *testing.T) {
	dummy := &dummyHandler{}
	h := CertAuth(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/vault", nil)
	h.ServeHTTP(rec, req)

	if dummy.called {
		t.Error("did not expect next handler to be called when no certificate provided")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
	}
}

func TestCertAuth_EmptyCommonName(t *testing.T) {
	dummy := &dummyHandler{}
	h := CertAuth(dummy)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withPeer(httptest.NewRequest("GET", "/api/vault", nil), ""))

	if dummy.called {
		t.Error("did not expect next handler to be called for an anonymous certificate")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
	}
}

func TestCertAuth_ValidCertificate(t *testing.T) {
	dummy := &dummyHandler{}
	h := CertAuth(dummy)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withPeer(httptest.NewRequest("GET", "/api/vault", nil), "alice"))

	if !dummy.called {
		t.Error("expected next handler to be called when valid certificate provided")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", rec.Code)
	}
	if p := PrincipalFromContext(dummy.ctx); p != "alice" {
		t.Errorf("expected context principal 'alice', got '%s'", p)
	}
}

func TestPrincipalFromContext(t *testing.T) {
	if p := PrincipalFromContext(context.Background()); p != "" {
		t.Errorf("expected empty principal, got '%s'", p)
	}
	ctx := WithPrincipal(context.Background(), models.Principal("bob"))
	if p := PrincipalFromContext(ctx); p != "bob" {
		t.Errorf("expected 'bob', got '%s'", p)
	}
}
