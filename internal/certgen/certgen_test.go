package certgen

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCA(t *testing.T) (certPath, keyPath string, caCert *x509.Certificate) {
	t.Helper()
	caCert, caKey, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	keyPEM, err := EncodeKey(caKey)
	if err != nil {
		t.Fatalf("EncodeKey: %v", err)
	}
	dir := t.TempDir()
	certPath = filepath.Join(dir, "ca.crt")
	keyPath = filepath.Join(dir, "ca.key")
	if err := os.WriteFile(certPath, EncodeCertificate(caCert.Raw), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath, caCert
}

func TestGenerateCA(t *testing.T) {
	caCert, caKey, err := GenerateCA("NikahPrep Dev CA")
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	if !caCert.IsCA || !caCert.BasicConstraintsValid {
		t.Error("CA certificate should be a valid CA")
	}
	if caCert.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Errorf("CA KeyUsage = %v; want CertSign", caCert.KeyUsage)
	}
	if caCert.Subject.CommonName != "NikahPrep Dev CA" {
		t.Errorf("CommonName = %q", caCert.Subject.CommonName)
	}
	if !caKey.PublicKey.Equal(caCert.PublicKey) {
		t.Error("key does not match certificate")
	}
}

func TestLoadCACredentials_Success(t *testing.T) {
	certPath, keyPath, want := writeCA(t)

	caCert, caKey, err := LoadCACredentials(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCACredentials error: %v", err)
	}
	if caCert.Subject.CommonName != want.Subject.CommonName {
		t.Errorf("CommonName = %q; want %q", caCert.Subject.CommonName, want.Subject.CommonName)
	}
	if !caKey.PublicKey.Equal(want.PublicKey) {
		t.Error("public key mismatch")
	}
}

func TestLoadCACredentials_Errors(t *testing.T) {
	certPath, keyPath, _ := writeCA(t)
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		certPath string
		keyPath  string
		want     string
	}{
		{"missing cert", filepath.Join(dir, "none.crt"), keyPath, "read ca cert"},
		{"missing key", certPath, filepath.Join(dir, "none.key"), "read ca key"},
		{"bad cert", garbage, keyPath, "invalid CA cert PEM"},
		{"bad key", certPath, garbage, "invalid CA key PEM"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadCACredentials(tc.certPath, tc.keyPath)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("got %v; want error containing %q", err, tc.want)
			}
		})
	}
}

func TestGenerateServerCertificate(t *testing.T) {
	caCert, caKey, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}

	certPEM, keyPEM, err := GenerateServerCertificate([]string{"localhost", "127.0.0.1"}, caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateServerCertificate error: %v", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("cert PEM invalid")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	if cert.Subject.CommonName != "localhost" {
		t.Errorf("CommonName = %q; want localhost", cert.Subject.CommonName)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "localhost" {
		t.Errorf("DNSNames = %v", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v", cert.IPAddresses)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	if _, err := cert.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: pool}); err != nil {
		t.Errorf("certificate does not verify against CA: %v", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil || keyBlock.Type != "EC PRIVATE KEY" {
		t.Fatal("key PEM invalid")
	}
	if _, err := x509.ParseECPrivateKey(keyBlock.Bytes); err != nil {
		t.Errorf("parse private key failed: %v", err)
	}
}

func TestGenerateServerCertificate_NoHosts(t *testing.T) {
	caCert, caKey, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := GenerateServerCertificate(nil, caCert, caKey); err == nil {
		t.Fatal("expected error without hosts")
	}
}
