package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithCORSAllowList(t *testing.T) {
	called := false
	h := WithCORS([]string{"https://gamelog.example/"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/games", nil)
	req.Header.Set("Origin", "https://gamelog.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://gamelog.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if !called {
		t.Fatalf("expected handler to run")
	}

	req = httptest.NewRequest(http.MethodGet, "/games", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("did not expect allow origin for unknown origin, got %q", got)
	}
}

func TestWithCORSPreflight(t *testing.T) {
	h := WithCORS(nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatalf("preflight must not reach handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/games/1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}
