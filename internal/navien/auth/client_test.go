package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// memoryStore is an in-memory TokenStore for tests.
type memoryStore struct {
	mu     sync.Mutex
	tokens map[string]Tokens
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: make(map[string]Tokens)}
}

func (m *memoryStore) Load(_ context.Context, email string) (*Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[email]
	if !ok {
		return nil, ErrNoStoredTokens
	}
	cpy := t
	return &cpy, nil
}

func (m *memoryStore) Save(_ context.Context, email string, tokens Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = tokens
	m.saves++
	return nil
}

func (m *memoryStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, email)
	return nil
}

func tokenResponse(t *testing.T, w http.ResponseWriter, access, refresh string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"idToken":      "id-token",
		"expiresIn":    3600,
	})
	if err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func TestClient_Authenticate_Login(t *testing.T) {
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/sign-in" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body["userId"] != "user@example.com" || body["password"] != "secret" {
			t.Errorf("unexpected credentials: %v", body)
		}
		loginCalls++
		tokenResponse(t, w, "access-1", "refresh-1")
	}))
	defer srv.Close()

	store := newMemoryStore()
	client := NewClient("user@example.com", "secret",
		WithBaseURL(srv.URL), WithTokenStore(store))

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login calls = %d, want 1", loginCalls)
	}

	token, err := client.AccessToken()
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "access-1" {
		t.Errorf("AccessToken() = %q, want %q", token, "access-1")
	}

	// Tokens must be persisted after login.
	if store.saves != 1 {
		t.Errorf("store saves = %d, want 1", store.saves)
	}

	// A second call reuses the in-memory tokens without hitting the cloud.
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("second Authenticate() error = %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login calls after reuse = %d, want 1", loginCalls)
	}
}

func TestClient_Authenticate_InvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient("user@example.com", "wrong", WithBaseURL(srv.URL))

	err := client.Authenticate(context.Background())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
	if IsRetriable(err) {
		t.Error("invalid credentials must not be retriable")
	}
}

func TestClient_Authenticate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("user@example.com", "secret", WithBaseURL(srv.URL))

	err := client.Authenticate(context.Background())
	if err == nil {
		t.Fatal("Authenticate() error = nil, want server error")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Error("server error must not map to ErrInvalidCredentials")
	}
	if !IsRetriable(err) {
		t.Error("server error must be retriable")
	}
}

func TestClient_Authenticate_RestoresStoredTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s, stored tokens should be used", r.URL.Path)
	}))
	defer srv.Close()

	store := newMemoryStore()
	store.tokens["user@example.com"] = Tokens{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	client := NewClient("user@example.com", "secret",
		WithBaseURL(srv.URL), WithTokenStore(store))

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	token, err := client.AccessToken()
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "stored-access" {
		t.Errorf("AccessToken() = %q, want stored token", token)
	}
}

func TestClient_Authenticate_ExpiredStoredTokensFallBackToLogin(t *testing.T) {
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/sign-in" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		loginCalls++
		tokenResponse(t, w, "fresh-access", "fresh-refresh")
	}))
	defer srv.Close()

	store := newMemoryStore()
	store.tokens["user@example.com"] = Tokens{
		AccessToken: "stale-access",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}

	client := NewClient("user@example.com", "secret",
		WithBaseURL(srv.URL), WithTokenStore(store))

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login calls = %d, want 1", loginCalls)
	}
}

func TestClient_EnsureValidToken_RefreshesExpiredTokens(t *testing.T) {
	var refreshCalls, loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/refresh-token":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decoding request: %v", err)
			}
			if body["refreshToken"] != "refresh-1" {
				t.Errorf("refreshToken = %q, want %q", body["refreshToken"], "refresh-1")
			}
			refreshCalls++
			tokenResponse(t, w, "access-2", "")
		case "/user/sign-in":
			loginCalls++
			tokenResponse(t, w, "access-login", "refresh-login")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient("user@example.com", "secret", WithBaseURL(srv.URL))
	client.tokens = &Tokens{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	if err := client.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}
	if refreshCalls != 1 || loginCalls != 0 {
		t.Errorf("refreshCalls = %d, loginCalls = %d, want 1 and 0", refreshCalls, loginCalls)
	}

	tokens := client.CurrentTokens()
	if tokens.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want %q", tokens.AccessToken, "access-2")
	}
	// Refresh response omitted a new refresh token, so the old one stays.
	if tokens.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want retained %q", tokens.RefreshToken, "refresh-1")
	}
}

func TestClient_EnsureValidToken_RejectedRefreshFallsBackToLogin(t *testing.T) {
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/refresh-token":
			w.WriteHeader(http.StatusUnauthorized)
		case "/user/sign-in":
			loginCalls++
			tokenResponse(t, w, "access-login", "refresh-login")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient("user@example.com", "secret", WithBaseURL(srv.URL))
	client.tokens = &Tokens{
		AccessToken:  "access-1",
		RefreshToken: "refresh-stale",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	if err := client.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login calls = %d, want 1", loginCalls)
	}

	token, err := client.AccessToken()
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "access-login" {
		t.Errorf("AccessToken() = %q, want %q", token, "access-login")
	}
}

func TestClient_AccessToken_NotAuthenticated(t *testing.T) {
	client := NewClient("user@example.com", "secret")

	_, err := client.AccessToken()
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("AccessToken() error = %v, want ErrNotAuthenticated", err)
	}
}
