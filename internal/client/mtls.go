// Package client talks to the POSVault HTTPS API over mutual TLS.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/phessophissy/POSVault/internal/models"
)

// RegisterPath is the unauthenticated registration endpoint.
const RegisterPath = "/api/register"

func loadCAPool(caPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	return caPool, nil
}

// NewAnonymousClient returns an HTTP client that trusts the server CA but
// presents no certificate. It can only register.
func NewAnonymousClient(caPath string) (*http.Client, error) {
	caPool, err := loadCAPool(caPath)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{TLSClientConfig: &tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12}}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

// LoadClientCertificate returns an HTTP client authenticating with the
// certificate in certFile and keyFile and trusting the CA in caFile.
func LoadClientCertificate(certFile, keyFile, caFile string) (*http.Client, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	caPool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      caPool,
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

// Register asks the server for a certificate for principal and writes it to
// certOut and keyOut.
func Register(ctx context.Context, client *http.Client, baseURL string, principal models.Principal, certOut, keyOut string) error {
	b, err := json.Marshal(map[string]models.Principal{"principal": principal})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+RegisterPath, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return readAPIError(resp)
	}

	var certData struct {
		Cert string `json:"cert"`
		Key  string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&certData); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	for _, p := range []string{certOut, keyOut} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(certOut, []byte(certData.Cert), 0o600); err != nil {
		return fmt.Errorf("failed to save %s: %w", certOut, err)
	}
	if err := os.WriteFile(keyOut, []byte(certData.Key), 0o600); err != nil {
		return fmt.Errorf("failed to save %s: %w", keyOut, err)
	}
	return nil
}
