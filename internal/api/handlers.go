package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/cache"
	"github.com/JakeFAU/ogp-proxy/internal/config"
	"github.com/JakeFAU/ogp-proxy/internal/metrics"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

func (s *Server) handleOG(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	raw := r.URL.Query().Get("q")
	target, err := proxy.ParseTarget(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		s.finish(r, "og", raw, err, http.StatusBadRequest, "", 0, start)
		return
	}

	record, err := s.extractor.Extract(r.Context(), target)
	if err != nil {
		status, msg := upstreamFailure(err)
		s.logger.Debug("metadata extraction failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("target", target.String()),
			zap.Error(err),
		)
		w.Header().Set("Cache-Control", cache.CacheControlNone)
		writeError(w, status, msg)
		s.finish(r, "og", raw, err, status, "", 0, start)
		return
	}

	w.Header().Set("Cache-Control", cache.CacheControl)
	writeJSON(w, http.StatusOK, envelope{Data: &record})
	s.finish(r, "og", raw, nil, http.StatusOK, "application/json", 0, start)
}

// upstreamFailure maps a metadata pipeline error onto a status and message.
func upstreamFailure(err error) (int, string) {
	var upstream *proxy.UpstreamError
	if errors.As(err, &upstream) && !upstream.Connect() {
		return http.StatusNotFound, fmt.Sprintf("Server Responded with %d %s", upstream.StatusCode, upstream.StatusText)
	}
	return http.StatusInternalServerError, "Failed to fetch the URL"
}

// imageHandler serves the image pipeline for box. Every pipeline failure
// falls back to the placeholder at fallbackPath.
func (s *Server) imageHandler(route string, box proxy.FitTarget, fallbackPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		raw := r.URL.Query().Get("q")
		target, err := proxy.ParseTarget(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Bad Request")
			s.finish(r, route, raw, err, http.StatusBadRequest, "", 0, start)
			return
		}

		result, err := s.images.Process(r.Context(), target, box)
		if err != nil {
			s.logger.Debug("image pipeline failed, serving placeholder",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("route", route),
				zap.String("target", target.String()),
				zap.Error(err),
			)
			status := s.fallback(w, r, box, fallbackPath)
			s.finish(r, route, raw, err, status, "", 0, start)
			return
		}

		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Cache-Control", cache.CacheControl)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.Body); err != nil {
			s.logger.Debug("image write failed", zap.Error(err))
		}
		s.finish(r, route, raw, nil, http.StatusOK, result.ContentType, len(result.Body), start)
	}
}

// fallback answers a failed image request according to the configured mode
// and returns the status it wrote.
func (s *Server) fallback(w http.ResponseWriter, r *http.Request, box proxy.FitTarget, path string) int {
	if s.cfg.Server.FallbackMode == config.FallbackInline {
		writeAsset(w, s.placeholders.For(box), cache.CacheControl)
		return http.StatusOK
	}
	w.Header().Set("Cache-Control", cache.CacheControlNone)
	http.Redirect(w, r, path, http.StatusFound)
	return http.StatusFound
}

// finish records the pipeline outcome and publishes a PipelineEvent without
// blocking the response.
func (s *Server) finish(
	r *http.Request,
	route, target string,
	err error,
	status int,
	contentType string,
	size int,
	start time.Time,
) {
	outcome := proxy.Outcome(err)
	metrics.ObservePipeline(route, outcome)
	if s.publisher == nil {
		return
	}
	event := proxy.PipelineEvent{
		RequestID:   requestIDFrom(r.Context()),
		Route:       route,
		Target:      target,
		Outcome:     outcome,
		Status:      status,
		ContentType: contentType,
		Bytes:       size,
		DurationMs:  s.now().Sub(start).Milliseconds(),
		At:          s.now().UTC(),
	}
	topic := s.cfg.PubSub.TopicName
	ctx := context.WithoutCancel(r.Context())

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if _, err := s.publisher.Publish(ctx, topic, event); err != nil {
			s.logger.Warn("pipeline event publish failed",
				zap.String("request_id", event.RequestID),
				zap.Error(err),
			)
		}
	}()
}
