// Package main generates a development CA and a server certificate for the
// NikahPrep API, writing them under -dir. An existing CA in that directory
// is reused so clients that already trust it keep working.
//
// Point the server at server.crt/server.key (tls_cert, tls_key) and the CLI
// at ca.crt (--ca).
package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/NikahPrep/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	flag.Parse()

	if err := run(*dir, splitHosts(*hosts)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Certificates written to %s\n", *dir)
}

func run(dir string, hosts []string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	caCert, caKey, err := loadOrCreateCA(dir)
	if err != nil {
		return err
	}

	certPEM, keyPEM, err := certgen.GenerateServerCertificate(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "server.crt"), certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "server.key"), keyPEM, 0o600)
}

func loadOrCreateCA(dir string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certPath := filepath.Join(dir, "ca.crt")
	keyPath := filepath.Join(dir, "ca.key")

	if _, err := os.Stat(certPath); err == nil {
		return certgen.LoadCACredentials(certPath, keyPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	caCert, caKey, err := certgen.GenerateCA("NikahPrep Dev CA")
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := certgen.EncodeKey(caKey)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(certPath, certgen.EncodeCertificate(caCert.Raw), 0o644); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return nil, nil, err
	}
	return caCert, caKey, nil
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
