package client

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phessophissy/POSVault/internal/certgen"
	"github.com/phessophissy/POSVault/internal/models"
)

// writeServerCA stores the test server's self-signed certificate as a CA file.
func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.crt")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRegister_SavesCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RegisterPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req["principal"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"cert":"CERT","key":"KEY"}`))
	}))
	defer srv.Close()

	httpClient, err := NewAnonymousClient(writeServerCA(t, srv))
	require.NoError(t, err)

	dir := t.TempDir()
	certOut := filepath.Join(dir, "alice", "client.crt")
	keyOut := filepath.Join(dir, "alice", "client.key")
	require.NoError(t, Register(context.Background(), httpClient, srv.URL, "alice", certOut, keyOut))

	got, err := os.ReadFile(certOut)
	require.NoError(t, err)
	assert.Equal(t, "CERT", string(got))
	got, err = os.ReadFile(keyOut)
	require.NoError(t, err)
	assert.Equal(t, "KEY", string(got))
}

func TestRegister_ServerError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"PrincipalTaken","kind":"state_conflict"}`))
	}))
	defer srv.Close()

	httpClient, err := NewAnonymousClient(writeServerCA(t, srv))
	require.NoError(t, err)

	dir := t.TempDir()
	err = Register(context.Background(), httpClient, srv.URL, "alice", filepath.Join(dir, "c"), filepath.Join(dir, "k"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "PrincipalTaken", apiErr.Code)
	assert.Equal(t, "state_conflict", apiErr.Kind)
	_, statErr := os.Stat(filepath.Join(dir, "c"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewAnonymousClient_Errors(t *testing.T) {
	_, err := NewAnonymousClient(filepath.Join(t.TempDir(), "missing.crt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
	_, err = NewAnonymousClient(bad)
	assert.Error(t, err)
}

func TestLoadClientCertificate(t *testing.T) {
	caCert, caKey, err := certgen.GenerateCA("Test CA", time.Hour)
	require.NoError(t, err)
	certPEM, keyPEM, err := certgen.GenerateUserCertificate("alice", caCert, caKey)
	require.NoError(t, err)

	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.crt")
	require.NoError(t, os.WriteFile(caPath, certgen.EncodeCertificate(caCert), 0o600))
	certPath, keyPath := filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key")
	require.NoError(t, certgen.WritePair(certPath, keyPath, certPEM, keyPEM))

	httpClient, err := LoadClientCertificate(certPath, keyPath, caPath)
	require.NoError(t, err)
	transport, ok := httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Len(t, transport.TLSClientConfig.Certificates, 1)

	_, err = LoadClientCertificate(filepath.Join(dir, "none.crt"), keyPath, caPath)
	assert.Error(t, err)
}

func TestClient_RequestsAndDecoding(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.RequestURI()}
		if r.ContentLength > 0 {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&c.body))
		}
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/vault":
			_, _ = w.Write([]byte(`{"total_locked":7,"depositor_count":1,"reward_rate_bps":100,"paused":false}`))
		case "/api/vault/claim":
			_, _ = w.Write([]byte(`{"rewards":42}`))
		case "/api/governance/proposals":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":3}`))
		case "/api/governance/proposals/3/votes/bob":
			w.WriteHeader(http.StatusNoContent)
		case "/api/ledger/base/balances/alice":
			_, _ = w.Write([]byte(`{"principal":"alice","balance":99}`))
		case "/api/governance/proposals/3/execute":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"QuorumNotMet","kind":"policy_gate"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.Client(), srv.URL)

	vs, err := c.VaultState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), vs.TotalLocked)

	require.NoError(t, c.Deposit(ctx, 500))
	reward, err := c.ClaimRewards(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), reward)

	id, err := c.CreateProposal(ctx, ProposalInput{Title: "t", Kind: models.KindPause})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	vote, err := c.VoteRecord(ctx, 3, "bob")
	require.NoError(t, err)
	assert.Nil(t, vote)

	bal, err := c.Balance(ctx, "base", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), bal)

	require.NoError(t, c.RemoveMinter(ctx, "base", "faucet"))

	_, err = c.ExecuteProposal(ctx, 3)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "QuorumNotMet", apiErr.Code)
	assert.Equal(t, "QuorumNotMet (policy_gate, HTTP 422)", apiErr.Error())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 8)
	assert.Equal(t, call{method: "POST", path: "/api/vault/deposit", body: map[string]any{"amount": float64(500)}}, calls[1])
	assert.Equal(t, "POST", calls[3].method)
	assert.Equal(t, "pause", calls[3].body["kind"])
	assert.Equal(t, call{method: "DELETE", path: "/api/ledger/base/minters/faucet"}, calls[6])
}

func TestAPIError_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no client certificate provided", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), srv.URL).VaultState(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "HTTP 401: no client certificate provided", apiErr.Error())
}

func TestFollow(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("after") {
		case "0":
			_, _ = w.Write([]byte(`[{"seq":1,"type":"vault.deposit"},{"seq":2,"type":"vault.claim"}]`))
		case "2":
			if n > 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected after=%s", r.URL.Query().Get("after"))
		}
	}))
	defer srv.Close()

	var seen []string
	last, err := New(srv.Client(), srv.URL).Follow(context.Background(), "alice", 0, time.Millisecond, func(ev models.Event) {
		seen = append(seen, ev.Type)
	})
	require.Error(t, err)
	assert.Equal(t, uint64(2), last)
	assert.Equal(t, []string{"vault.deposit", "vault.claim"}, seen)
}

func TestFollow_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	last, err := New(srv.Client(), srv.URL).Follow(ctx, "", 5, time.Millisecond, func(models.Event) {})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestFollow_DrainsFullPagesWithoutWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page := func(from, n int) []models.Event {
		out := make([]models.Event, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, models.Event{Seq: uint64(from + i), Type: "ledger.mint"})
		}
		return out
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		var events []models.Event
		switch r.URL.Query().Get("after") {
		case "0":
			events = page(1, FollowPageSize)
		case "100":
			events = page(101, 1)
		default:
			cancel()
			events = []models.Event{}
		}
		_ = json.NewEncoder(w).Encode(events)
	}))
	defer srv.Close()

	var seen int
	last, err := New(srv.Client(), srv.URL).Follow(ctx, "", 0, time.Hour, func(models.Event) { seen++ })
	require.NoError(t, err)
	assert.Equal(t, uint64(101), last)
	assert.Equal(t, 101, seen)
}
