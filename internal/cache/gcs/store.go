// Package gcs provides a response cache backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/ogp-proxy/internal/cache"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Store keeps one JSON envelope object per key in a bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

// New creates a GCS-backed cache.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}, nil
}

// Get downloads the entry for key. Missing or expired objects are misses.
func (s *Store) Get(ctx context.Context, key string) (proxy.CachedResponse, bool, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return proxy.CachedResponse{}, false, nil
		}
		return proxy.CachedResponse{}, false, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return proxy.CachedResponse{}, false, fmt.Errorf("read object: %w", err)
	}
	resp, err := cache.Decode(data)
	if err != nil {
		return proxy.CachedResponse{}, false, err
	}
	if resp.Expired(s.now()) {
		return proxy.CachedResponse{}, false, nil
	}
	return resp, true, nil
}

// Put uploads the entry for key.
func (s *Store) Put(ctx context.Context, key string, resp proxy.CachedResponse) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	data, err := cache.Encode(resp)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CustomTime = resp.ExpiresAt
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (s *Store) objectName(key string) string {
	if s.prefix == "" {
		return key + ".json"
	}
	return path.Join(s.prefix, key+".json")
}
