package store

import (
	"path/filepath"
	"testing"

	"github.com/jsjperu/wha-relay/relay/internal/config"
)

func TestNew_Drivers(t *testing.T) {
	dir := t.TempDir()

	s, err := New(config.StorageConfig{Driver: "file", DSN: filepath.Join(dir, "tokens.json")}, testLogger())
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("file driver returned %T", s)
	}

	s, err = New(config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(dir, "relay.db")}, testLogger())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("sqlite driver returned %T", s)
	}

	if _, err := New(config.StorageConfig{Driver: "redis"}, testLogger()); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
