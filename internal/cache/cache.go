// Package cache holds the response-cache helpers shared by every backend:
// request keys, freshness parsing, and the stored envelope format.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Freshness directives attached to responses.
const (
	MaxAge            = 3600
	CacheControl      = "public, max-age=3600, s-maxage=3600"
	CacheControlAsset = "public, max-age=31536000, s-maxage=31536000, immutable"
	CacheControlNone  = "no-store"
)

// Key derives the cache key for a request identity: method plus the
// requested host and URI.
func Key(method, host, requestURI string) string {
	sum := sha256.Sum256([]byte(method + " " + host + requestURI))
	return hex.EncodeToString(sum[:])
}

// TTLFromHeader returns how long a response may be stored according to its
// Cache-Control header. s-maxage wins over max-age; fallback applies when
// neither is present. no-store and private responses get zero.
func TTLFromHeader(h http.Header, fallback time.Duration) time.Duration {
	cc := h.Get("Cache-Control")
	if cc == "" {
		return fallback
	}
	var (
		maxAge  = -1
		sMaxAge = -1
	)
	for _, part := range strings.Split(cc, ",") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch strings.ToLower(name) {
		case "no-store", "private", "no-cache":
			return 0
		case "max-age":
			if n, err := strconv.Atoi(strings.Trim(value, `"`)); err == nil {
				maxAge = n
			}
		case "s-maxage":
			if n, err := strconv.Atoi(strings.Trim(value, `"`)); err == nil {
				sMaxAge = n
			}
		}
	}
	switch {
	case sMaxAge >= 0:
		return time.Duration(sMaxAge) * time.Second
	case maxAge >= 0:
		return time.Duration(maxAge) * time.Second
	default:
		return fallback
	}
}

// Storable reports whether a response with this status may be cached.
func Storable(status int) bool {
	return status >= 200 && status <= 299
}

// NewEntry builds a CachedResponse stored at now.
func NewEntry(status int, header http.Header, body []byte, now time.Time, ttl time.Duration) proxy.CachedResponse {
	return proxy.CachedResponse{
		Status:    status,
		Header:    header.Clone(),
		Body:      append([]byte(nil), body...),
		StoredAt:  now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}
}

// Encode serializes an entry for blob backends.
func Encode(resp proxy.CachedResponse) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return data, nil
}

// Decode parses an entry written by Encode.
func Decode(data []byte) (proxy.CachedResponse, error) {
	var resp proxy.CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return proxy.CachedResponse{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return resp, nil
}
