package controlplane

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// tokenFile is the mode-0600 YAML persisted alongside a generated bearer
// token: only its SHA-256 digest, never the token itself (§4.8).
type tokenFile struct {
	TokenHash string `yaml:"token_hash"`
}

// GenerateToken returns a fresh 256-bit base64url-unpadded bearer token
// (§4.8: "shown once at generation").
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("controlplane: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PersistTokenHash writes only token's digest to path, mode 0600.
func PersistTokenHash(path, token string) error {
	raw, err := yaml.Marshal(tokenFile{TokenHash: hashToken(token)})
	if err != nil {
		return fmt.Errorf("controlplane: marshal token file: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// TokenVerifier checks presented bearer tokens against a persisted digest
// in constant time.
type TokenVerifier struct {
	hash string
}

// LoadTokenVerifier reads the token digest from path.
func LoadTokenVerifier(path string) (*TokenVerifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("controlplane: read token file %s: %w", path, err)
	}
	var tf tokenFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("controlplane: parse token file %s: %w", path, err)
	}
	return &TokenVerifier{hash: tf.TokenHash}, nil
}

// Verify reports whether token's digest matches, in constant time.
func (v *TokenVerifier) Verify(token string) bool {
	if v == nil || v.hash == "" {
		return false
	}
	presented := hashToken(token)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(v.hash)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header, if present.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
