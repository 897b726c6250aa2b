package certgen

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTestCA generates a CA and writes it to a temp dir, returning the paths
// and the parsed values for comparison.
func writeTestCA(t *testing.T) (certPath, keyPath string, caCert *x509.Certificate, caKey *ecdsa.PrivateKey) {
	t.Helper()

	caCert, caKey, err := GenerateCA("Test CA", 24*time.Hour)
	if err != nil {
		t.Fatalf("generate CA: %v", err)
	}
	keyPEM, err := EncodeKey(caKey)
	if err != nil {
		t.Fatalf("encode CA key: %v", err)
	}
	dir := t.TempDir()
	certPath = filepath.Join(dir, "ca.crt")
	keyPath = filepath.Join(dir, "ca.key")
	if err := WritePair(certPath, keyPath, EncodeCertificate(caCert), keyPEM); err != nil {
		t.Fatalf("write CA: %v", err)
	}
	return certPath, keyPath, caCert, caKey
}

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.pem")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenerateCA(t *testing.T) {
	caCert, _, err := GenerateCA("POSVault CA", 48*time.Hour)
	if err != nil {
		t.Fatalf("GenerateCA error: %v", err)
	}
	if !caCert.IsCA || !caCert.BasicConstraintsValid {
		t.Error("CA certificate should have IsCA and BasicConstraintsValid set")
	}
	if caCert.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Errorf("CA KeyUsage = %v; want CertSign", caCert.KeyUsage)
	}
	if caCert.Subject.CommonName != "POSVault CA" {
		t.Errorf("CommonName = %q", caCert.Subject.CommonName)
	}
}

func TestLoadCACredentials_Success(t *testing.T) {
	certPath, keyPath, wantCert, wantKey := writeTestCA(t)

	certOut, keyOut, err := LoadCACredentials(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCACredentials error: %v", err)
	}
	if certOut.Subject.CommonName != wantCert.Subject.CommonName {
		t.Errorf("CommonName = %q; want %q", certOut.Subject.CommonName, wantCert.Subject.CommonName)
	}
	parsedKey, ok := keyOut.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("key type = %T; want *ecdsa.PrivateKey", keyOut)
	}
	if !parsedKey.PublicKey.Equal(&wantKey.PublicKey) {
		t.Error("public key mismatch")
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v; want 0600", info.Mode().Perm())
	}
}

func TestLoadCACredentials_Errors(t *testing.T) {
	certPath, keyPath, _, _ := writeTestCA(t)
	garbage := writeTemp(t, "not a pem")
	unsupported := writeTemp(t, string(pem.EncodeToMemory(&pem.Block{Type: "DSA PRIVATE KEY", Bytes: []byte{1}})))

	cases := []struct {
		name     string
		cert     string
		key      string
		wantText string
	}{
		{"missing cert", "/no/such/file.pem", keyPath, "read ca cert"},
		{"missing key", certPath, "/no/such/key.pem", "read ca key"},
		{"bad cert", garbage, keyPath, "invalid CA cert PEM"},
		{"bad key", certPath, garbage, "invalid CA key PEM"},
		{"unsupported key", certPath, unsupported, "unsupported key type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadCACredentials(tc.cert, tc.key)
			if err == nil || !strings.Contains(err.Error(), tc.wantText) {
				t.Errorf("got %v; want error containing %q", err, tc.wantText)
			}
		})
	}
}

func TestGenerateUserCertificate_Success(t *testing.T) {
	_, _, caCert, caKey := writeTestCA(t)

	certPEM, keyPEM, err := GenerateUserCertificate("alice", caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateUserCertificate error: %v", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert PEM invalid")
	}
	userCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse user cert: %v", err)
	}
	if userCert.Subject.CommonName != "alice" {
		t.Errorf("CommonName = %q; want %q", userCert.Subject.CommonName, "alice")
	}
	if err := userCert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("signature check failed: %v", err)
	}
	if len(userCert.ExtKeyUsage) != 1 || userCert.ExtKeyUsage[0] != x509.ExtKeyUsageClientAuth {
		t.Errorf("ExtKeyUsage = %v; want client auth", userCert.ExtKeyUsage)
	}
	if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
		t.Errorf("cert and key do not pair: %v", err)
	}
}

func TestGenerateUserCertificate_EmptyName(t *testing.T) {
	_, _, caCert, caKey := writeTestCA(t)
	if _, _, err := GenerateUserCertificate("", caCert, caKey); err == nil {
		t.Error("expected error for empty common name")
	}
}

func TestGenerateServerCertificate(t *testing.T) {
	_, _, caCert, caKey := writeTestCA(t)

	certPEM, _, err := GenerateServerCertificate([]string{"localhost", "127.0.0.1"}, caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateServerCertificate error: %v", err)
	}
	block, _ := pem.Decode(certPEM)
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse server cert: %v", err)
	}
	if err := cert.VerifyHostname("localhost"); err != nil {
		t.Errorf("hostname localhost: %v", err)
	}
	if err := cert.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("hostname 127.0.0.1: %v", err)
	}

	if _, _, err := GenerateServerCertificate(nil, caCert, caKey); err == nil {
		t.Error("expected error without hosts")
	}
}

func TestIssuer(t *testing.T) {
	certPath, keyPath, caCert, _ := writeTestCA(t)

	issuer, err := NewIssuer(certPath, keyPath)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	certPEM, _, err := issuer.Issue("bob")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	block, _ := pem.Decode(certPEM)
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     issuer.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		t.Errorf("issued certificate does not verify against the CA: %v", err)
	}
	if !issuer.Pool().Equal(NewIssuerFromCA(caCert, nil).Pool()) {
		t.Error("pools differ for the same CA")
	}

	if _, err := NewIssuer("/no/such/ca.crt", keyPath); err == nil {
		t.Error("expected error for missing CA")
	}
}
