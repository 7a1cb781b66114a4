package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// storeFactories returns every backend that can run without external services.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := NewFile(filepath.Join(t.TempDir(), "tokens.json"), testLogger())
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_TokenLifecycle(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			if _, err := s.GetToken(ctx, "20123456789"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetToken on empty store: got %v, want ErrNotFound", err)
			}

			if err := s.UpsertToken(ctx, "20123456789", "secret-1"); err != nil {
				t.Fatalf("UpsertToken: %v", err)
			}
			got, err := s.GetToken(ctx, "20123456789")
			if err != nil {
				t.Fatalf("GetToken: %v", err)
			}
			if got != "secret-1" {
				t.Errorf("token = %q, want secret-1", got)
			}

			// Overwrite.
			if err := s.UpsertToken(ctx, "20123456789", "secret-2"); err != nil {
				t.Fatalf("UpsertToken overwrite: %v", err)
			}
			got, _ = s.GetToken(ctx, "20123456789")
			if got != "secret-2" {
				t.Errorf("token after overwrite = %q, want secret-2", got)
			}

			if err := s.UpsertToken(ctx, "10987654321", "other"); err != nil {
				t.Fatalf("UpsertToken second tenant: %v", err)
			}
			all, err := s.ListTokens(ctx)
			if err != nil {
				t.Fatalf("ListTokens: %v", err)
			}
			if len(all) != 2 || all["20123456789"] != "secret-2" || all["10987654321"] != "other" {
				t.Errorf("ListTokens = %v", all)
			}

			if err := s.DeleteToken(ctx, "20123456789"); err != nil {
				t.Fatalf("DeleteToken: %v", err)
			}
			if _, err := s.GetToken(ctx, "20123456789"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetToken after delete: got %v, want ErrNotFound", err)
			}
			if err := s.DeleteToken(ctx, "20123456789"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second DeleteToken: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_RejectsBlankCredentials(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			cases := []struct{ ruc, token string }{
				{"", "tok"},
				{"   ", "tok"},
				{"20123456789", ""},
			}
			for _, c := range cases {
				if err := s.UpsertToken(ctx, c.ruc, c.token); !errors.Is(err, ErrInvalidCredential) {
					t.Errorf("UpsertToken(%q, %q) = %v, want ErrInvalidCredential", c.ruc, c.token, err)
				}
			}
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			if err := newStore(t).Ping(context.Background()); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}
