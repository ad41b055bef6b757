package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/cache"
	"github.com/JakeFAU/ogp-proxy/internal/metrics"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Headers that belong to a single exchange and are never replayed.
var unstoredHeaders = []string{"X-Request-ID", "X-Cache"}

// cacheMiddleware replays stored responses and stores fresh 2xx responses in
// the background once they have been written to the client.
func (s *Server) cacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cache.Key(r.Method, r.Host, r.URL.RequestURI())
		logger := s.logger.With(zap.String("request_id", requestIDFrom(r.Context())))

		stored, ok, err := s.cache.Get(r.Context(), key)
		switch {
		case err != nil:
			metrics.ObserveCacheLookup("error")
			logger.Warn("cache lookup failed", zap.Error(err))
		case ok:
			metrics.ObserveCacheLookup("hit")
			replay(w, stored)
			return
		default:
			metrics.ObserveCacheLookup("miss")
		}

		w.Header().Set("X-Cache", "MISS")
		rec := &teeRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.failed || !cache.Storable(rec.status) {
			return
		}
		ttl := cache.TTLFromHeader(rec.Header(), s.cfg.CacheTTL())
		if ttl <= 0 {
			return
		}
		header := rec.Header().Clone()
		for _, h := range unstoredHeaders {
			header.Del(h)
		}
		entry := cache.NewEntry(rec.status, header, rec.body.Bytes(), s.now(), ttl)

		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.store(context.WithoutCancel(r.Context()), key, entry, logger)
		}()
	})
}

func (s *Server) store(ctx context.Context, key string, entry proxy.CachedResponse, logger *zap.Logger) {
	timeout := time.Duration(s.cfg.Cache.StoreTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.cache.Put(ctx, key, entry); err != nil {
		metrics.ObserveCacheStore("error")
		logger.Warn("cache store failed", zap.Error(err))
		return
	}
	metrics.ObserveCacheStore("ok")
}

func replay(w http.ResponseWriter, stored proxy.CachedResponse) {
	h := w.Header()
	for k, v := range stored.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Set("X-Cache", "HIT")
	w.WriteHeader(stored.Status)
	if _, err := w.Write(stored.Body); err != nil {
		zap.L().Debug("write cached response failed", zap.Error(err))
	}
}

// teeRecorder writes through to the client while keeping a copy of the
// status and body for the cache.
type teeRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	failed      bool
	body        bytes.Buffer
}

func (t *teeRecorder) WriteHeader(code int) {
	if !t.wroteHeader {
		t.status = code
		t.wroteHeader = true
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *teeRecorder) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.ResponseWriter.Write(b)
	t.body.Write(b[:n])
	if err != nil {
		t.failed = true
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
