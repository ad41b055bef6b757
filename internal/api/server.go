// Package api exposes the HTTP interface of the proxy: metadata (/og), image
// (/img, /fav) and placeholder (/nf, /nff) routes plus probes and metrics.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/cache"
	"github.com/JakeFAU/ogp-proxy/internal/config"
	"github.com/JakeFAU/ogp-proxy/internal/logging"
	"github.com/JakeFAU/ogp-proxy/internal/metrics"
	"github.com/JakeFAU/ogp-proxy/internal/placeholder"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

const (
	publishTimeout      = 5 * time.Second
	defaultStoreTimeout = 5 * time.Second
	tokenBytes          = 16
)

// Dependencies are the collaborators the HTTP layer delegates to. Cache and
// Publisher may be nil.
type Dependencies struct {
	Extractor    proxy.MetadataExtractor
	Images       proxy.ImageProcessor
	Placeholders *placeholder.Renderer
	Cache        proxy.ResponseCache
	Publisher    proxy.Publisher
}

// Server wires HTTP handlers to the pipelines and the response cache.
type Server struct {
	router       chi.Router
	extractor    proxy.MetadataExtractor
	images       proxy.ImageProcessor
	placeholders *placeholder.Renderer
	cache        proxy.ResponseCache
	publisher    proxy.Publisher
	cfg          config.Config
	logger       *zap.Logger
	now          func() time.Time

	// background tracks cache stores and event publishes still in flight.
	background sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	placeholders := deps.Placeholders
	if placeholders == nil {
		placeholders = placeholder.New()
	}
	s := &Server{
		extractor:    deps.Extractor,
		images:       deps.Images,
		placeholders: placeholders,
		cache:        deps.Cache,
		publisher:    deps.Publisher,
		cfg:          cfg,
		logger:       logging.OrNop(logger),
		now:          time.Now,
	}

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		MaxAge:             cache.MaxAge,
		OptionsPassthrough: true,
	}))
	r.Use(preflightMiddleware)
	if d := cfg.RequestTimeout(); d > 0 {
		r.Use(timeoutMiddleware(d))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/nf", s.notFound(proxy.PresetLarge))
	r.Get("/nff", s.notFound(proxy.PresetSmall))
	if cfg.Auth.IssueTokens {
		r.Get("/token", s.issueToken)
	}

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(tokenMiddleware(cfg.Auth.Token))
		}
		if s.cache != nil {
			r.Use(s.cacheMiddleware)
		}
		r.Get("/og", s.handleOG)
		r.Get("/img", s.imageHandler("img", proxy.PresetLarge, "/nf"))
		r.Get("/fav", s.imageHandler("fav", proxy.PresetSmall, "/nff"))
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Drain waits for background cache stores and event publishes to finish or
// for ctx to expire.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain background work: %w", ctx.Err())
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) notFound(box proxy.FitTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeAsset(w, s.placeholders.For(box), cache.CacheControlAsset)
	}
}

func (s *Server) issueToken(w http.ResponseWriter, _ *http.Request) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", cache.CacheControlNone)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(hex.EncodeToString(buf))); err != nil {
		s.logger.Debug("token write failed", zap.Error(err))
	}
}

// envelope is the JSON shape of every /og response.
type envelope struct {
	Error   bool                  `json:"error"`
	Message string                `json:"message,omitempty"`
	Data    *proxy.MetadataRecord `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: true, Message: msg})
}

func writeAsset(w http.ResponseWriter, body []byte, cacheControl string) {
	w.Header().Set("Content-Type", placeholder.ContentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		zap.L().Debug("write placeholder failed", zap.Error(err))
	}
}
