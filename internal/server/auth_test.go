package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gskdl78/Labor-saver/internal/engine"
)

func authedServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	return newTestServer(t,
		&Deps{Engine: &fakeAnswerer{resp: &engine.Response{Tier: engine.TierPreset, Success: true}}},
		&Config{APIKey: apiKey})
}

// TestAuth_MissingToken verifies protected routes challenge requests without
// an Authorization header.
func TestAuth_MissingToken(t *testing.T) {
	t.Parallel()

	s := authedServer(t, "s3cr3t")
	w := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
}

// TestAuth_InvalidToken verifies a wrong token is rejected.
func TestAuth_InvalidToken(t *testing.T) {
	t.Parallel()

	s := authedServer(t, "s3cr3t")
	req := httptest.NewRequest(http.MethodGet, "/api/chat/preset-questions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

// TestAuth_ValidToken verifies a correct Bearer token passes through.
func TestAuth_ValidToken(t *testing.T) {
	t.Parallel()

	s := authedServer(t, "s3cr3t")
	req := httptest.NewRequest(http.MethodGet, "/api/chat/preset-questions", nil)
	req.Header.Set("Authorization", "Bearer s3cr3t")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// TestAuth_CaseInsensitiveScheme verifies "bearer" matches regardless of case.
func TestAuth_CaseInsensitiveScheme(t *testing.T) {
	t.Parallel()

	s := authedServer(t, "s3cr3t")
	req := httptest.NewRequest(http.MethodGet, "/api/chat/preset-questions", nil)
	req.Header.Set("Authorization", "bearer s3cr3t")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// TestAuth_PublicPathsExempt verifies probes and the metrics scrape stay
// reachable without a token.
func TestAuth_PublicPathsExempt(t *testing.T) {
	t.Parallel()

	s := authedServer(t, "s3cr3t")
	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		w := doJSON(t, s, http.MethodGet, path, "")
		if w.Code == http.StatusUnauthorized {
			t.Errorf("%s: got 401, want exempt from auth", path)
		}
	}
}

// TestAuth_DisabledWhenNoKey verifies empty key means open access.
func TestAuth_DisabledWhenNoKey(t *testing.T) {
	t.Parallel()

	s := authedServer(t, "")
	w := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth disabled", w.Code)
	}
}

// TestBearerToken verifies header parsing edge cases.
func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer tok", "tok"},
		{"bearer tok", "tok"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
		{"Bearer  spaced ", "spaced"},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(r); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
