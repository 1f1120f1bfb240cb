package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, tokenCalls *int64, userHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/apporte/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(tokenCalls, 1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "password" {
			http.Error(w, "wrong grant", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "opaque-token",
			"expires_in":   300,
		})
	})
	mux.HandleFunc("/admin/realms/apporte/users/", userHandler)
	return httptest.NewServer(mux)
}

func TestGetUser(t *testing.T) {
	var tokenCalls int64
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        "user-1",
			"email":     "user1@example.com",
			"firstName": "User",
			"lastName":  "One",
			"attributes": map[string][]string{
				"phoneNumber": {"+4915112345678"},
			},
		})
	})
	defer srv.Close()

	c := New(srv.URL+"/admin/realms/apporte", "admin", "secret", "admin-cli", 5*time.Second)
	p, err := c.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if p == nil {
		t.Fatal("profile is nil")
	}
	if p.Email != "user1@example.com" {
		t.Errorf("email = %q", p.Email)
	}
	if p.FullName() != "User One" {
		t.Errorf("full name = %q", p.FullName())
	}
	if p.Phone != "+4915112345678" {
		t.Errorf("phone = %q, want attribute extracted", p.Phone)
	}
}

func TestGetUserNotFound(t *testing.T) {
	var tokenCalls int64
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	defer srv.Close()

	c := New(srv.URL+"/admin/realms/apporte", "admin", "secret", "admin-cli", 5*time.Second)
	p, err := c.GetUser(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if p != nil {
		t.Errorf("profile = %+v, want nil for unknown user", p)
	}
}

func TestTokenCached(t *testing.T) {
	var tokenCalls int64
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1"})
	})
	defer srv.Close()

	c := New(srv.URL+"/admin/realms/apporte", "admin", "secret", "admin-cli", 5*time.Second)
	for i := 0; i < 3; i++ {
		if _, err := c.GetUser(context.Background(), "user-1"); err != nil {
			t.Fatalf("GetUser: %v", err)
		}
	}
	if n := atomic.LoadInt64(&tokenCalls); n != 1 {
		t.Errorf("token requests = %d, want 1 (cached)", n)
	}

	c.ClearTokenCache()
	if _, err := c.GetUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if n := atomic.LoadInt64(&tokenCalls); n != 2 {
		t.Errorf("token requests = %d, want 2 after cache clear", n)
	}
}

func TestTokenExpiryRefetch(t *testing.T) {
	var tokenCalls int64
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1"})
	})
	defer srv.Close()

	c := New(srv.URL+"/admin/realms/apporte", "admin", "secret", "admin-cli", 5*time.Second)

	now := time.Now()
	c.now = func() time.Time { return now }

	if _, err := c.GetUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}

	// Advance past expires_in minus the margin.
	now = now.Add(10 * time.Minute)
	if _, err := c.GetUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if n := atomic.LoadInt64(&tokenCalls); n != 2 {
		t.Errorf("token requests = %d, want 2 after expiry", n)
	}
}

func TestConcurrentTokenRefreshSingleFlight(t *testing.T) {
	var tokenCalls int64
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1"})
	})
	defer srv.Close()

	c := New(srv.URL+"/admin/realms/apporte", "admin", "secret", "admin-cli", 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetUser(context.Background(), "user-1"); err != nil {
				t.Errorf("GetUser: %v", err)
			}
		}()
	}
	wg.Wait()

	// Callers share at most a couple of in-flight refreshes, never one each.
	if n := atomic.LoadInt64(&tokenCalls); n > 2 {
		t.Errorf("token requests = %d, want at most 2 under concurrency", n)
	}
}

func TestTokenURL(t *testing.T) {
	c := New("http://keycloak:8080/admin/realms/apporte", "a", "b", "admin-cli", time.Second)
	want := "http://keycloak:8080/realms/apporte/protocol/openid-connect/token"
	if got := c.tokenURL(); got != want {
		t.Errorf("tokenURL = %q, want %q", got, want)
	}
}
