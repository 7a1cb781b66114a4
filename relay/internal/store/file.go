package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps all tenant tokens in a single JSON document
// ({"<ruc>": "<token>", ...}). Every read goes to disk so external edits are
// picked up immediately; every write replaces the document atomically.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex // serializes read-modify-write cycles
}

// NewFile opens (or creates) the token document at path.
func NewFile(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	s := &FileStore{path: path, logger: logger.With("component", "store", "driver", "file")}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("file store: create dir: %w", err)
		}
		if err := s.write(map[string]string{}); err != nil {
			return nil, err
		}
		s.logger.Info("created empty token store", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("file store: stat: %w", err)
	}
	return s, nil
}

// load reads the document. A missing or unparsable document yields an empty
// map; corrupt reports whether the file existed but could not be decoded.
func (s *FileStore) load() (tokens map[string]string, corrupt bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("token store unreadable, treating as empty", "path", s.path, "error", err)
		}
		return map[string]string{}, false
	}
	if len(data) == 0 {
		return map[string]string{}, false
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		s.logger.Warn("token store corrupt, treating as empty", "path", s.path, "error", err)
		return map[string]string{}, true
	}
	if tokens == nil {
		tokens = map[string]string{}
	}
	return tokens, false
}

// write replaces the document: temp file in the same directory, fsync, rename.
func (s *FileStore) write(tokens map[string]string) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

// loadForWrite is load for mutations: a corrupt document is moved aside
// before it gets overwritten.
func (s *FileStore) loadForWrite() (map[string]string, error) {
	tokens, corrupt := s.load()
	if corrupt {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if err := os.Rename(s.path, aside); err != nil {
			return nil, fmt.Errorf("file store: preserve corrupt document: %w", err)
		}
		s.logger.Warn("moved corrupt token store aside", "path", aside)
	}
	return tokens, nil
}

func (s *FileStore) GetToken(ctx context.Context, ruc string) (string, error) {
	tokens, _ := s.load()
	token, ok := tokens[ruc]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (s *FileStore) UpsertToken(ctx context.Context, ruc, token string) error {
	if err := validCredential(ruc, token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.loadForWrite()
	if err != nil {
		return err
	}
	tokens[ruc] = token
	return s.write(tokens)
}

func (s *FileStore) DeleteToken(ctx context.Context, ruc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.loadForWrite()
	if err != nil {
		return err
	}
	if _, ok := tokens[ruc]; !ok {
		return ErrNotFound
	}
	delete(tokens, ruc)
	return s.write(tokens)
}

func (s *FileStore) ListTokens(ctx context.Context) (map[string]string, error) {
	tokens, _ := s.load()
	return tokens, nil
}

// Ping checks that the document's directory is still reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
