package main

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/phessophissy/POSVault/internal/certgen"
)

func TestRun_WritesVerifiablePKI(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	if err := run(dir, "treasury", []string{"localhost", "127.0.0.1"}); err != nil {
		t.Fatalf("run error: %v", err)
	}

	for _, name := range []string{"ca.crt", "ca.key", "server.crt", "server.key", "client.crt", "client.key"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	issuer, err := certgen.NewIssuer(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	if err != nil {
		t.Fatalf("load generated CA: %v", err)
	}

	client, err := tls.LoadX509KeyPair(filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key"))
	if err != nil {
		t.Fatalf("load client pair: %v", err)
	}
	clientCert, err := x509.ParseCertificate(client.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if clientCert.Subject.CommonName != "treasury" {
		t.Errorf("client CN = %q; want treasury", clientCert.Subject.CommonName)
	}
	if _, err := clientCert.Verify(x509.VerifyOptions{
		Roots:     issuer.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}); err != nil {
		t.Errorf("client certificate does not verify: %v", err)
	}

	server, err := tls.LoadX509KeyPair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	if err != nil {
		t.Fatalf("load server pair: %v", err)
	}
	serverCert, err := x509.ParseCertificate(server.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := serverCert.Verify(x509.VerifyOptions{Roots: issuer.Pool(), DNSName: "localhost"}); err != nil {
		t.Errorf("server certificate does not verify for localhost: %v", err)
	}
}

func TestRun_RejectsEmptyOwner(t *testing.T) {
	if err := run(t.TempDir(), "", []string{"localhost"}); err == nil {
		t.Error("expected error for empty owner")
	}
}
