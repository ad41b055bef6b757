package metadata

import (
	"bytes"
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Extractor implements proxy.MetadataExtractor on top of a Fetcher.
type Extractor struct {
	fetcher proxy.Fetcher
	logger  *zap.Logger
}

// New builds an Extractor.
func New(fetcher proxy.Fetcher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, logger: logger}
}

// Extract fetches target and scans it. Only upstream failures are errors;
// they wrap proxy.ErrUpstreamUnavailable.
func (e *Extractor) Extract(ctx context.Context, target proxy.FetchTarget) (proxy.MetadataRecord, error) {
	ctx, span := otel.Tracer("ogproxy/metadata").Start(ctx, "metadata.extract")
	defer span.End()
	span.SetAttributes(attribute.String("target", target.String()))

	resp, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		e.logger.Info("metadata fetch failed",
			zap.String("target", target.String()),
			zap.String("outcome", proxy.Outcome(err)),
			zap.Error(err),
		)
		return proxy.MetadataRecord{}, fmt.Errorf("fetch page: %w", err)
	}

	record := Scan(bytes.NewReader(resp.Body), target.Raw, target.Origin())
	span.SetAttributes(
		attribute.Bool("metadata.has_description", record.Description != ""),
		attribute.Bool("metadata.has_image", record.Image != ""),
		attribute.Bool("metadata.has_favicon", record.Favicon != ""),
	)
	e.logger.Debug("metadata extracted",
		zap.String("target", target.String()),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("fetch_duration", resp.Duration),
	)
	return record, nil
}
