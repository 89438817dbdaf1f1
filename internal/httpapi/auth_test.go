package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/pricing"
	"clearvue/backend/internal/store"
	"clearvue/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	repo := memory.NewSeeded(pricing.NewCalculator(0.15))
	return NewAuthManager("test-secret", time.Hour, repo, zerolog.Nop())
}

func TestLoginAndParseToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	cases := []domain.LoginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "nobody", Password: "admin123"},
		{Username: "", Password: "admin123"},
		{Username: "admin", Password: ""},
	}
	for _, req := range cases {
		if _, err := auth.Login(req); err == nil {
			t.Fatalf("Login(%q) succeeded, want error", req.Username)
		}
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := memory.NewSeeded(pricing.NewCalculator(0.15))
	issuer := NewAuthManager("secret-a", time.Hour, repo, zerolog.Nop())
	verifier := NewAuthManager("secret-b", time.Hour, repo, zerolog.Nop())

	resp, err := issuer.Login(domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("ParseToken accepted a token signed with a different secret")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	repo := memory.NewSeeded(pricing.NewCalculator(0.15))
	auth := NewAuthManager("test-secret", -time.Minute, repo, zerolog.Nop())
	// Negative TTL falls back to the default, so force it after construction.
	auth.tokenTTL = -time.Minute

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("ParseToken accepted an expired token")
	}
}

func TestCreateUserPersistsAndAllowsLogin(t *testing.T) {
	repo := memory.NewSeeded(pricing.NewCalculator(0.15))
	auth := NewAuthManager("test-secret", time.Hour, repo, zerolog.Nop())

	user, err := auth.CreateUser(context.Background(), "barista", "letmein-please", domain.RoleCashier)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Password != "" {
		t.Fatal("CreateUser leaked the password hash")
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "barista", Password: "letmein-please"}); err != nil {
		t.Fatalf("login as new user: %v", err)
	}

	stored, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	found := false
	for _, account := range stored {
		if account.Username == "barista" {
			found = true
			if !isPasswordHash(account.Password) {
				t.Fatal("stored password is not hashed")
			}
		}
	}
	if !found {
		t.Fatal("new user was not persisted")
	}
}

func TestCreateUserValidation(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.CreateUser(context.Background(), "", "letmein-please", domain.RoleCashier); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("empty username: err = %v, want ErrInvalidInput", err)
	}
	if _, err := auth.CreateUser(context.Background(), "barista", "short", domain.RoleCashier); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("short password: err = %v, want ErrInvalidInput", err)
	}
	if _, err := auth.CreateUser(context.Background(), "barista", "letmein-please", "owner"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("unknown role: err = %v, want ErrInvalidInput", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	handler := newTestHandler(t)

	var last int
	for i := 0; i < 6; i++ {
		rec := doJSON(handler, http.MethodPost, "/api/v1/auth/login", `{"username":"admin","password":"wrong"}`, "")
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt status = %d, want 429", last)
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, 50*time.Millisecond)
	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("first two attempts should pass")
	}
	if limiter.Allow("a") {
		t.Fatal("third attempt inside the window should be blocked")
	}
	if !limiter.Allow("b") {
		t.Fatal("separate keys are limited independently")
	}
	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow("a") {
		t.Fatal("attempts should pass again after the window expires")
	}
}
