package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL store and runs migrations.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tenant_tokens (
			ruc TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetToken(ctx context.Context, ruc string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		"SELECT token FROM tenant_tokens WHERE ruc = $1", ruc,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) UpsertToken(ctx context.Context, ruc, token string) error {
	if err := validCredential(ruc, token); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_tokens (ruc, token) VALUES ($1, $2)
		 ON CONFLICT(ruc) DO UPDATE SET token=EXCLUDED.token, updated_at=NOW()`,
		ruc, token,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteToken(ctx context.Context, ruc string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tenant_tokens WHERE ruc = $1", ruc)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTokens(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT ruc, token FROM tenant_tokens ORDER BY ruc")
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]string)
	for rows.Next() {
		var ruc, token string
		if err := rows.Scan(&ruc, &token); err != nil {
			return nil, fmt.Errorf("list tokens: %w", err)
		}
		tokens[ruc] = token
	}
	return tokens, rows.Err()
}
