// Package collyfetcher implements proxy.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/metrics"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// MaxRedirects is the number of redirect hops followed before failing.
	MaxRedirects int
}

// Fetcher implements proxy.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       proxy.Limiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

var (
	// errTooManyRedirects is returned from the redirect handler once the hop budget is spent.
	errTooManyRedirects = errors.New("too many redirects")
	// errBodyTooLarge marks a response whose body exceeded MaxBodyBytes.
	errBodyTooLarge = errors.New("response body too large")
)

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter proxy.Limiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		// One extra byte lets OnResponse tell a full body from a truncated one.
		colly.MaxBodySize(cfg.MaxBodyBytes+1),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Clones share the HTTP backend, so transport, timeout and redirect
	// policy are configured once here.
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	maxRedirects := cfg.MaxRedirects
	c.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, maxRedirects)
		}
		return nil
	})

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly and buffers the body.
// Transport failures and non-2xx statuses are reported as *proxy.UpstreamError;
// for the latter the response is returned as well.
func (f *Fetcher) Fetch(ctx context.Context, target proxy.FetchTarget) (proxy.UpstreamResponse, error) {
	rawURL := target.String()
	ctx, span := otel.Tracer("ogproxy/fetcher").Start(ctx, "fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.url", rawURL))

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limited")
			return proxy.UpstreamResponse{}, &proxy.UpstreamError{URL: rawURL, Err: err}
		}
	}

	var (
		result   proxy.UpstreamResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreachable")
		f.logger.Debug("upstream fetch failed", zap.String("url", rawURL), zap.Error(err))
		return proxy.UpstreamResponse{}, &proxy.UpstreamError{URL: rawURL, Err: err}
	}

	metrics.ObserveUpstream(rawURL, len(result.Body))
	span.SetAttributes(
		attribute.Int("http.status_code", result.StatusCode),
		attribute.Int("http.response_content_length", len(result.Body)),
	)
	if !result.OK() {
		span.SetStatus(codes.Error, result.StatusText)
		return result, &proxy.UpstreamError{
			URL:        rawURL,
			StatusCode: result.StatusCode,
			StatusText: result.StatusText,
		}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	result *proxy.UpstreamResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *proxy.UpstreamResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,image/avif,image/webp,image/*,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		if len(r.Body) > f.cfg.MaxBodyBytes {
			*fetchErr = fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, f.cfg.MaxBodyBytes)
			return
		}
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := ""
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*result = proxy.UpstreamResponse{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			StatusText: http.StatusText(r.StatusCode),
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
