package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sapira-ai/pharo-backend/pkg/config"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
)

type counterStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCounterStore() *counterStore {
	return &counterStore{counts: map[string]int64{}}
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

// hit sends n requests from remote with the given body and returns the status codes.
func hit(h http.Handler, n int, path, remote, body string) []int {
	codes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	return codes
}

func TestAuthRateLimitBodyReachesHandler(t *testing.T) {
	var seen string
	h := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 5), newCounterStore(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			seen = string(raw)
		}))

	body := `{"email":"tester@acme.com","password":"secret"}`
	hit(h, 1, "/api/v1/auth/login", "1.2.3.4:5678", body)
	if seen != body {
		t.Fatalf("expected body restored, got %q", seen)
	}
}

func TestAuthRateLimitPerEmail(t *testing.T) {
	store := newCounterStore()
	h := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 0, 2), store, nil)(okHandler())

	codes := hit(h, 3, "/api/v1/auth/login", "1.2.3.4:1", `{"email":" Blocked@Acme.com "}`)
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	// Another address has its own budget.
	if got := hit(h, 1, "/api/v1/auth/login", "1.2.3.4:1", `{"email":"other@acme.com"}`); got[0] != http.StatusOK {
		t.Fatalf("expected other email to pass, got %v", got)
	}
}

func TestAuthRateLimitPerIP(t *testing.T) {
	h := AuthRateLimit(NewAuthRateLimitPolicy("register", time.Minute, 1, 0), newCounterStore(), nil)(okHandler())

	codes := hit(h, 2, "/api/v1/auth/register", "5.6.7.8:1234", `{"email":"foo@acme.com"}`)
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if got := hit(h, 1, "/api/v1/auth/register", "5.6.7.9:1234", `{}`); got[0] != http.StatusOK {
		t.Fatalf("expected fresh IP to pass, got %v", got)
	}
}

func TestResolveRateLimitCountsIPOnly(t *testing.T) {
	store := newCounterStore()
	policy := ResolveRateLimitPolicy(config.AuthRateLimitConfig{ResolveWindow: time.Minute, ResolveIPLimit: 2})
	h := AuthRateLimit(policy, store, nil)(okHandler())

	var codes []int
	for _, email := range []string{"a@acme.com", "b@acme.com", "c@acme.com"} {
		codes = append(codes, hit(h, 1, "/api/public/v1/organizations/resolve", "9.9.9.9:1000", `{"email":"`+email+`"}`)...)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third resolve to be limited, got %v", codes)
	}
	for key := range store.counts {
		if strings.HasPrefix(key, "rl:email:") {
			t.Fatalf("resolve must not count emails, found %s", key)
		}
	}
}

func TestAuthRateLimitResponse(t *testing.T) {
	policy := LoginRateLimitPolicy(config.AuthRateLimitConfig{LoginWindow: time.Minute, LoginIPLimit: 1})
	h := AuthRateLimit(policy, newCounterStore(), nil)(okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.0.1")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After 60, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	assertErrorCode(t, rec, pkgerrors.CodeRateLimit)
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newCounterStore()
	h := AuthRateLimit(NewAuthRateLimitPolicy("login", 0, 1, 1), store, nil)(okHandler())
	codes := hit(h, 3, "/api/v1/auth/login", "1.1.1.1:1", `{"email":"a@acme.com"}`)
	for _, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("expected disabled policy to pass, got %v", codes)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("expected no counters, got %v", store.counts)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.1"}, "1.1.1.1:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.2"}, "1.1.1.1:80", "10.0.0.2"},
		{"remote", nil, "1.1.1.1:80", "1.1.1.1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		if got := clientIP(req); got != tc.want {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.want, got)
		}
	}
}
