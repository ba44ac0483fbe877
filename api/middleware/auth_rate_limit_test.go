package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeWindowStore struct {
	counts map[string]int64
	limit  int64
	scopes []string
}

func newFakeWindowStore(limit int64) *fakeWindowStore {
	return &fakeWindowStore{counts: make(map[string]int64), limit: limit}
}

func (f *fakeWindowStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.counts[scope]++
	f.scopes = append(f.scopes, scope)
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func loginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.7:4411"
	return req
}

func TestAuthRateLimitBlocksAfterIPLimit(t *testing.T) {
	store := newFakeWindowStore(2)
	policy := NewAuthRateLimitPolicy("login", time.Minute, 2, 0)
	var calls int
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, loginRequest(`{}`))
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, loginRequest(`{}`))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}

func TestAuthRateLimitScopesEmailByHash(t *testing.T) {
	store := newFakeWindowStore(100)
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 5)
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), loginRequest(`{"email":"Reader@Example.com"}`))
	handler.ServeHTTP(httptest.NewRecorder(), loginRequest(`{"email":"reader@example.com "}`))

	if len(store.scopes) != 2 {
		t.Fatalf("expected 2 window checks, got %d", len(store.scopes))
	}
	if store.scopes[0] != store.scopes[1] {
		t.Fatalf("expected case and whitespace to normalize to one scope: %q vs %q", store.scopes[0], store.scopes[1])
	}
	if strings.Contains(store.scopes[0], "reader@example.com") {
		t.Fatal("raw email must not appear in the scope")
	}
}

func TestAuthRateLimitRestoresBodyForHandler(t *testing.T) {
	store := newFakeWindowStore(100)
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 5)
	var seen string
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		seen = string(payload)
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"email":"reader@example.com","password":"secret"}`
	handler.ServeHTTP(httptest.NewRecorder(), loginRequest(body))
	if seen != body {
		t.Fatalf("expected handler to see original body, got %q", seen)
	}
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", 0, 10, 10)
	var calls int
	handler := AuthRateLimit(policy, newFakeWindowStore(1), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), loginRequest(`{}`))
	}
	if calls != 5 {
		t.Fatalf("expected all requests through a disabled policy, got %d", calls)
	}
}
