// Package store defines the tenant token store for the relay and provides
// file, SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a tenant has no stored token.
var ErrNotFound = errors.New("tenant not found")

// ErrInvalidCredential is returned when a tenant id or token is blank.
var ErrInvalidCredential = errors.New("ruc and token are required")

// Store is the persistence interface for tenant credentials.
// Reads always reflect the latest successful write.
type Store interface {
	// GetToken returns the token for ruc, or ErrNotFound.
	GetToken(ctx context.Context, ruc string) (string, error)
	// UpsertToken creates or replaces the token for ruc.
	UpsertToken(ctx context.Context, ruc, token string) error
	// DeleteToken removes ruc, or returns ErrNotFound.
	DeleteToken(ctx context.Context, ruc string) error
	// ListTokens returns every tenant and its token.
	ListTokens(ctx context.Context) (map[string]string, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

func validCredential(ruc, token string) error {
	if strings.TrimSpace(ruc) == "" || token == "" {
		return ErrInvalidCredential
	}
	return nil
}
