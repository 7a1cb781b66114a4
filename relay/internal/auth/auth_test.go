package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/relay/internal/config"
)

func newTestAuthService(t *testing.T, expiry time.Duration) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(config.AuthConfig{
		JWTSecret:         "test-secret-at-least-32-chars-long",
		JWTExpiry:         config.Duration{Duration: expiry},
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	})
}

func TestLoginSuccess(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)
	ctx := context.Background()

	token, err := svc.Login(ctx, "admin", "admin-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	identity, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if identity.Username != "admin" {
		t.Errorf("Username: got %q, want %q", identity.Username, "admin")
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.Login(ctx, "root", "admin-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong username: got %v", err)
	}
}

func TestLoginDisabled(t *testing.T) {
	svc := NewService(config.AuthConfig{JWTSecret: "test-secret-at-least-32-chars-long"})
	if svc.Enabled() {
		t.Fatal("service without password hash should be disabled")
	}
	if _, err := svc.Login(context.Background(), "admin", "x"); !errors.Is(err, ErrLoginDisabled) {
		t.Errorf("got %v, want ErrLoginDisabled", err)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := newTestAuthService(t, -time.Hour)
	ctx := context.Background()

	token, err := svc.Login(ctx, "admin", "admin-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)
	ctx := context.Background()
	token, _ := svc.Login(ctx, "admin", "admin-password")

	other := NewService(config.AuthConfig{JWTSecret: "another-secret-at-least-32-chars!!"})
	if _, err := other.ValidateToken(ctx, token); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.ValidateToken(ctx, "garbage"); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized for garbage, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestSignature(t *testing.T) {
	body := []byte(`{"ruc":"20123456789","phone_number":"51999888777","message":"hola"}`)
	sig := protocol.SignBody("shared-secret", body)

	if err := VerifySignature("shared-secret", body, sig); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := VerifySignature("shared-secret", append(body, ' '), sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered body: got %v", err)
	}
	if err := VerifySignature("shared-secret", body, ""); !errors.Is(err, ErrBadSignature) {
		t.Errorf("missing signature: got %v", err)
	}
	if err := VerifySignature("", body, ""); err != nil {
		t.Errorf("disabled check should pass: %v", err)
	}
}
