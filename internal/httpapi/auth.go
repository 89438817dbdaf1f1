package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/store"
)

const (
	defaultAuthSecret = "dev-change-me"
	defaultTokenTTL   = 8 * time.Hour
	tokenIssuer       = "clearvue"
)

var errInvalidCredentials = errors.New("invalid username or password")

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type cachedUser struct {
	passwordHash string
	role         string
	active       bool
}

// AuthManager issues and validates access tokens. Credentials are loaded
// from the user store once and kept in memory; CreateUser writes through
// both.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	store    UserStore
	logger   zerolog.Logger

	mu           sync.RWMutex
	users        map[string]cachedUser
	bootstrapped bool
}

func NewAuthManager(secret string, tokenTTL time.Duration, store UserStore, logger zerolog.Logger) *AuthManager {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		trimmed = defaultAuthSecret
		logger.Warn().Msg("AUTH_SECRET is not set; using an insecure development secret")
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthManager{
		secret:   []byte(trimmed),
		tokenTTL: tokenTTL,
		store:    store,
		logger:   logger,
		users:    make(map[string]cachedUser),
	}
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (m *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	if err := m.bootstrapUsers(); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("load users: %w", err)
	}

	m.mu.RLock()
	user, ok := m.users[username]
	m.mu.RUnlock()
	if !ok || !user.active || !verifyPassword(user.passwordHash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	claims := accessClaims{
		Role: user.role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.LoginResponse{
		AccessToken: signed,
		Role:        user.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (m *AuthManager) ParseToken(token string) (domain.Actor, error) {
	claims := accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid token")
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

// CreateUser hashes the password, persists the account, and makes it
// usable for login without a reload.
func (m *AuthManager) CreateUser(ctx context.Context, username, password, role string) (domain.UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: username required and password must be at least 8 characters", store.ErrInvalidInput)
	}
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, role)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.UserAccount{
		Username:  username,
		Password:  hash,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}

	m.mu.Lock()
	m.users[username] = cachedUser{passwordHash: hash, role: role, active: true}
	m.mu.Unlock()

	user.Password = ""
	return user, nil
}

func (m *AuthManager) bootstrapUsers() error {
	m.mu.RLock()
	done := m.bootstrapped
	m.mu.RUnlock()
	if done {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accounts, err := m.store.ListUsers(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bootstrapped {
		return nil
	}
	for _, account := range accounts {
		if !isPasswordHash(account.Password) {
			m.logger.Warn().Str("username", account.Username).Msg("skipping user with non-hashed stored password")
			continue
		}
		m.users[account.Username] = cachedUser{
			passwordHash: account.Password,
			role:         account.Role,
			active:       account.Active,
		}
	}
	m.bootstrapped = true
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(storedHash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
