package controlplane

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckCSRFAllowsGetAndNativeClients(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if !CheckCSRF(r) {
		t.Fatalf("GET requests are never CSRF-checked")
	}

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	if !CheckCSRF(r) {
		t.Fatalf("a POST with no Origin/Referer header (native client) must pass")
	}
}

func TestCheckCSRFRejectsCrossSite(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Sec-Fetch-Site", "cross-site")
	if CheckCSRF(r) {
		t.Fatalf("cross-site POST must be rejected")
	}
}

func TestCheckCSRFRejectsNonLoopbackOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	if CheckCSRF(r) {
		t.Fatalf("non-loopback origin must be rejected")
	}
}

func TestCheckCSRFAllowsLoopbackOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Origin", "http://127.0.0.1:3000")
	if !CheckCSRF(r) {
		t.Fatalf("loopback origin must be allowed")
	}
}

func TestFailedAuthLimiterExemptsLoopback(t *testing.T) {
	l := NewFailedAuthLimiter()
	for i := 0; i < 10; i++ {
		if !l.AllowFailure("127.0.0.1:12345") {
			t.Fatalf("loopback must never be throttled")
		}
	}
}

func TestFailedAuthLimiterThrottlesRemote(t *testing.T) {
	l := NewFailedAuthLimiter()
	allowed := 0
	for i := 0; i < 5; i++ {
		if l.AllowFailure("203.0.113.5:1") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("expected burst of 2 to be allowed, got %d", allowed)
	}
}

func TestMiddlewareWrapRejectsMissingToken(t *testing.T) {
	v, err := func() (*TokenVerifier, error) {
		path := t.TempDir() + "/token.yaml"
		if err := PersistTokenHash(path, "good-token"); err != nil {
			return nil, err
		}
		return LoadTokenVerifier(path)
	}()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	mw := &Middleware{Verifier: v, Limiter: NewFailedAuthLimiter()}
	called := false
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatalf("handler must not run without a valid bearer token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareWrapAllowsValidToken(t *testing.T) {
	path := t.TempDir() + "/token.yaml"
	if err := PersistTokenHash(path, "good-token"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	v, err := LoadTokenVerifier(path)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	mw := &Middleware{Verifier: v, Limiter: NewFailedAuthLimiter()}
	called := false
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("handler must run with a valid bearer token")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
