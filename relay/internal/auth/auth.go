// Package auth provides operator authentication for the admin API and
// request signing for the send endpoint.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jsjperu/wha-relay/relay/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLoginDisabled      = errors.New("admin login is not configured")
)

// Claims represents the JWT token claims.
type Claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Identity is the authenticated operator behind a request.
type Identity struct {
	Username string
}

// Service handles operator login against the configured admin account.
type Service struct {
	jwtSecret    []byte
	jwtExpiry    time.Duration
	username     string
	passwordHash []byte
}

// NewService creates a new auth service.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		jwtSecret:    []byte(cfg.JWTSecret),
		jwtExpiry:    cfg.JWTExpiry.Duration,
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
	}
}

// Enabled reports whether admin routes require a bearer token.
func (s *Service) Enabled() bool {
	return len(s.passwordHash) > 0
}

// Login authenticates the operator and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if !s.Enabled() {
		return "", ErrLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", ErrInvalidCredentials
	}
	return s.generateToken(username)
}

// ValidateToken validates a bearer token and returns an Identity.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return &Identity{Username: claims.Username}, nil
}

func (s *Service) generateToken(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// HashPassword returns the bcrypt hash stored in auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
