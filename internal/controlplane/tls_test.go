package controlplane

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSelfSignedCertCoversHosts(t *testing.T) {
	cert, err := SelfSignedCert("localhost", "127.0.0.1")
	if err != nil {
		t.Fatalf("SelfSignedCert: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatalf("expected Leaf to be populated")
	}
	if got := time.Until(cert.Leaf.NotAfter); got < CertValidity-time.Hour || got > CertValidity+time.Hour {
		t.Fatalf("unexpected validity window: %v", got)
	}
}

func TestCertFingerprintIsStableAndColonSeparated(t *testing.T) {
	cert, err := SelfSignedCert("localhost")
	if err != nil {
		t.Fatalf("SelfSignedCert: %v", err)
	}
	fp1 := CertFingerprint(cert)
	fp2 := CertFingerprint(cert)
	if fp1 != fp2 {
		t.Fatalf("fingerprint must be deterministic for the same cert")
	}
	if len(fp1) != 32*3-1 {
		t.Fatalf("unexpected fingerprint length: %d (%q)", len(fp1), fp1)
	}
}

func TestLoadOrGenerateCertPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	first, err := LoadOrGenerateCert(certPath, keyPath, "localhost")
	if err != nil {
		t.Fatalf("LoadOrGenerateCert (generate): %v", err)
	}

	second, err := LoadOrGenerateCert(certPath, keyPath, "localhost")
	if err != nil {
		t.Fatalf("LoadOrGenerateCert (reload): %v", err)
	}

	if CertFingerprint(first) != CertFingerprint(second) {
		t.Fatalf("expected the second call to reload the persisted cert, not regenerate")
	}
}
