// Package postgres provides a Postgres-backed response cache.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

const defaultTable = "response_cache"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for cache rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store keeps cached responses in a single table keyed by request hash.
type Store struct {
	pool  queryExecCloser
	table string
	now   func() time.Time
}

// New connects a pool and ensures the cache table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table, now: time.Now}, nil
}

// EnsureSchema creates the cache table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	cache_key TEXT PRIMARY KEY,
	status INTEGER NOT NULL,
	headers JSONB NOT NULL,
	body BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Get returns the unexpired row for key.
func (s *Store) Get(ctx context.Context, key string) (proxy.CachedResponse, bool, error) {
	query := fmt.Sprintf(`
SELECT status, headers, body, stored_at, expires_at
FROM %s
WHERE cache_key = $1 AND expires_at > $2`, s.table)

	var (
		resp        proxy.CachedResponse
		headersJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, key, s.now().UTC()).
		Scan(&resp.Status, &headersJSON, &resp.Body, &resp.StoredAt, &resp.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proxy.CachedResponse{}, false, nil
		}
		return proxy.CachedResponse{}, false, fmt.Errorf("select cache row: %w", err)
	}
	resp.Header = http.Header{}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &resp.Header); err != nil {
			return proxy.CachedResponse{}, false, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return resp, true, nil
}

// Put upserts the row for key.
func (s *Store) Put(ctx context.Context, key string, resp proxy.CachedResponse) error {
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	headersJSON, err := json.Marshal(normalizeHeaders(resp.Header))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (cache_key, status, headers, body, stored_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (cache_key) DO UPDATE SET
	status = EXCLUDED.status,
	headers = EXCLUDED.headers,
	body = EXCLUDED.body,
	stored_at = EXCLUDED.stored_at,
	expires_at = EXCLUDED.expires_at`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		key,
		resp.Status,
		headersJSON,
		body,
		resp.StoredAt,
		resp.ExpiresAt,
	); err != nil {
		return fmt.Errorf("upsert cache row: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func normalizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return map[string][]string{}
	}
	return h
}
