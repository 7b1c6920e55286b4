// §6/§9: "Self-signed ECDSA P-256, 90-day validity, auto-regenerated
// within 7 days of expiry; SHA-256 fingerprint printed at startup for
// client pinning" — the cadence openclaw-style gateways follow for
// Let's-Encrypt-like rotation without depending on an ACME server.
package controlplane

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertValidity is how long a generated certificate remains valid.
const CertValidity = 90 * 24 * time.Hour

// CertRenewBefore regenerates a certificate once this close to expiry.
const CertRenewBefore = 7 * 24 * time.Hour

// SelfSignedCert builds a fresh self-signed ECDSA P-256 certificate valid
// for CertValidity, covering hosts (IPs and/or DNS names).
func SelfSignedCert(hosts ...string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("controlplane: generate cert key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("controlplane: generate serial: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "sven-node"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(CertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	if len(hosts) == 0 {
		tmpl.IPAddresses = append(tmpl.IPAddresses, net.ParseIP("127.0.0.1"))
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("controlplane: create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        &tmpl,
	}, nil
}

// LoadOrGenerateCert reads a PEM cert/key pair from certPath/keyPath,
// regenerating and overwriting both files when either is missing or the
// certificate expires within CertRenewBefore (§6, §9's auto-rotation
// note). cmd/sven calls it again from a daily job and hands a changed pair
// to the running listener through its GetCertificate hook, with no restart.
func LoadOrGenerateCert(certPath, keyPath string, hosts ...string) (tls.Certificate, error) {
	if cert, err := loadCertFiles(certPath, keyPath); err == nil && !expiringSoon(cert) {
		return cert, nil
	}

	cert, err := SelfSignedCert(hosts...)
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := persistCertFiles(certPath, keyPath, cert); err != nil {
		return tls.Certificate{}, err
	}
	return cert, nil
}

func loadCertFiles(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, err
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err == nil {
			cert.Leaf = leaf
		}
	}
	return cert, nil
}

func expiringSoon(cert tls.Certificate) bool {
	if cert.Leaf == nil {
		return true
	}
	return time.Until(cert.Leaf.NotAfter) < CertRenewBefore
}

func persistCertFiles(certPath, keyPath string, cert tls.Certificate) error {
	if dir := filepath.Dir(certPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("controlplane: create TLS cert dir: %w", err)
		}
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("controlplane: write %s: %w", certPath, err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		return fmt.Errorf("controlplane: marshal private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	return os.WriteFile(keyPath, keyPEM, 0o600)
}

// CertFingerprint returns the colon-separated, upper-hex SHA-256
// fingerprint of cert's leaf certificate, for startup display and client
// pinning (§6, §9).
func CertFingerprint(cert tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	out := make([]byte, 0, len(sum)*3-1)
	for i, b := range sum {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, []byte(hex.EncodeToString([]byte{b}))...)
	}
	return strings.ToUpper(string(out))
}
