package controlplane

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestGenerateTokenIsUnpaddedBase64Url(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(token) == 0 {
		t.Fatalf("expected non-empty token")
	}
	// 32 random bytes encode to 43 unpadded base64url characters.
	if raw, err := base64.RawURLEncoding.DecodeString(token); err != nil || len(raw) != 32 || len(token) != 43 {
		t.Fatalf("expected a 256-bit unpadded base64url token, got %q (err=%v)", token, err)
	}
	if token2, _ := GenerateToken(); token2 == token {
		t.Fatalf("expected distinct tokens across calls")
	}
}

func TestPersistAndLoadTokenVerifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	token := "s3cr3t-token-value"
	if err := PersistTokenHash(path, token); err != nil {
		t.Fatalf("PersistTokenHash: %v", err)
	}

	v, err := LoadTokenVerifier(path)
	if err != nil {
		t.Fatalf("LoadTokenVerifier: %v", err)
	}
	if !v.Verify(token) {
		t.Fatalf("expected verifier to accept the persisted token")
	}
	if v.Verify("wrong-token") {
		t.Fatalf("expected verifier to reject a wrong token")
	}
}

func TestNilVerifierRejectsEverything(t *testing.T) {
	var v *TokenVerifier
	if v.Verify("anything") {
		t.Fatalf("nil verifier must reject")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected no token on a bare request")
	}
	r.Header.Set("Authorization", "Bearer abc123")
	token, ok := BearerToken(r)
	if !ok || token != "abc123" {
		t.Fatalf("got %q, ok=%v", token, ok)
	}
}
