package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, called
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	w, called := serveCORS([]string{"https://chat.example"}, http.MethodGet, "https://chat.example")
	if !called || w.Code != http.StatusTeapot {
		t.Fatalf("expected request to reach handler, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Allow-Credentials = %q, want true", got)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	w, _ := serveCORS([]string{"*"}, http.MethodGet, "https://other.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://other.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("Allow-Credentials = %q, want empty", got)
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	w, called := serveCORS([]string{"https://chat.example"}, http.MethodGet, "https://evil.example")
	if !called {
		t.Fatal("expected request to reach handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want empty", got)
	}
}

func preflight(origins []string, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/messages", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, called
}

func TestCORSPreflight(t *testing.T) {
	w, called := preflight([]string{"*"}, "https://chat.example")
	if called {
		t.Fatal("preflight must not reach handler")
	}
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != corsMethods {
		t.Fatalf("Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != corsMaxAge {
		t.Fatalf("Max-Age = %q", got)
	}
}

func TestCORSPreflightUnknownOriginGetsNoGrant(t *testing.T) {
	w, called := preflight([]string{"https://chat.example"}, "https://evil.example")
	if called {
		t.Fatal("preflight must not reach handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("Allow-Methods = %q, want empty", got)
	}
}

func TestCORSPlainOptionsReachesHandler(t *testing.T) {
	_, called := serveCORS([]string{"*"}, http.MethodOptions, "https://chat.example")
	if !called {
		t.Fatal("OPTIONS without a preflight method must reach the handler")
	}
}

func TestCORSVariesByOrigin(t *testing.T) {
	w, _ := serveCORS([]string{"https://chat.example"}, http.MethodGet, "")
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("Vary = %q, want Origin", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q for a request without Origin", got)
	}
}
