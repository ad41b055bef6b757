// Package local implements a response cache on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/ogp-proxy/internal/cache"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Config captures the parameters for the local filesystem cache.
type Config struct {
	// BaseDir is the root directory where entries are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes one JSON envelope per key under BaseDir.
type Store struct {
	baseDir string
	now     func() time.Time
}

// New creates a new filesystem-backed cache, creating BaseDir if needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir, now: time.Now}, nil
}

// Get reads the entry for key. Missing or expired entries are misses.
func (s *Store) Get(_ context.Context, key string) (proxy.CachedResponse, bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return proxy.CachedResponse{}, false, err
	}
	// #nosec G304 -- path is derived from a validated key inside baseDir.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return proxy.CachedResponse{}, false, nil
		}
		return proxy.CachedResponse{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	resp, err := cache.Decode(data)
	if err != nil {
		return proxy.CachedResponse{}, false, err
	}
	if resp.Expired(s.now()) {
		_ = os.Remove(path)
		return proxy.CachedResponse{}, false, nil
	}
	return resp, true, nil
}

// Put writes the entry atomically via a temp file and rename.
func (s *Store) Put(_ context.Context, key string, resp proxy.CachedResponse) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	data, err := cache.Encode(resp)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

// pathFor shards entries by the first two key characters.
func (s *Store) pathFor(key string) (string, error) {
	if len(key) < 3 || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	fullPath := filepath.Join(s.baseDir, key[:2], key+".json")

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
