// Package certs keeps the self-signed certificate used by the local bank
// link page.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Validity is how long a generated certificate lasts.
const Validity = 90 * 24 * time.Hour

// renewBefore regenerates certificates this close to expiry.
const renewBefore = 24 * time.Hour

// Store loads or creates a localhost certificate in a directory.
type Store struct {
	now      func() time.Time
	dir      string
	certFile string
	keyFile  string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		certFile: filepath.Join(dir, "localhost.crt"),
		keyFile:  filepath.Join(dir, "localhost.key"),
		now:      time.Now,
	}
}

// DefaultDir is $XDG_CONFIG_HOME/zenny/certs, or ~/.config/zenny/certs.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "zenny", "certs"), nil
}

// Certificate returns the stored certificate, replacing it when it is
// missing, unreadable, expiring or not valid for localhost.
func (s *Store) Certificate() (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err == nil && s.usable(cert) == nil {
		return cert, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if rmErr := s.remove(); rmErr != nil {
			return tls.Certificate{}, rmErr
		}
	}
	return s.create()
}

// TLSConfig returns a server config serving the stored certificate.
func (s *Store) TLSConfig() (*tls.Config, error) {
	cert, err := s.Certificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (s *Store) create() (tls.Certificate, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := s.now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"zenny local bank link"}, CommonName: "localhost"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to encode private key: %w", err)
	}

	if err := writePEM(s.certFile, "CERTIFICATE", der); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(s.keyFile, "EC PRIVATE KEY", keyDER); err != nil {
		return tls.Certificate{}, err
	}
	return tls.LoadX509KeyPair(s.certFile, s.keyFile)
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) usable(cert tls.Certificate) error {
	if len(cert.Certificate) == 0 {
		return errors.New("no certificate in key pair")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	now := s.now()
	if now.Before(leaf.NotBefore) {
		return errors.New("certificate not yet valid")
	}
	if now.Add(renewBefore).After(leaf.NotAfter) {
		return errors.New("certificate expires soon")
	}
	if err := leaf.VerifyHostname("localhost"); err != nil {
		return fmt.Errorf("certificate not valid for localhost: %w", err)
	}
	return nil
}

func (s *Store) remove() error {
	for _, f := range []string{s.certFile, s.keyFile} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}
