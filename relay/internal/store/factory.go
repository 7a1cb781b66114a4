package store

import (
	"fmt"
	"log/slog"

	"github.com/jsjperu/wha-relay/relay/internal/config"
)

// New creates a Store based on the configured storage driver.
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "file", "":
		return NewFile(cfg.DSN, logger)
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}
