package imaging

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/metrics"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Pipeline implements proxy.ImageProcessor.
type Pipeline struct {
	fetcher proxy.Fetcher
	encoder Encoder
	logger  *zap.Logger
}

// NewPipeline builds a Pipeline. A nil encoder means WebP at DefaultQuality.
func NewPipeline(fetcher proxy.Fetcher, encoder Encoder, logger *zap.Logger) *Pipeline {
	if encoder == nil {
		encoder = WebPEncoder{Quality: DefaultQuality}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{fetcher: fetcher, encoder: encoder, logger: logger}
}

// Process fetches target and fits it into box.
func (p *Pipeline) Process(ctx context.Context, target proxy.FetchTarget, box proxy.FitTarget) (proxy.ImageResult, error) {
	ctx, span := otel.Tracer("ogproxy/imaging").Start(ctx, "image.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", target.String()),
		attribute.String("preset", box.Name),
	)

	resp, err := p.fetcher.Fetch(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return proxy.ImageResult{}, fmt.Errorf("fetch image: %w", err)
	}

	result, err := p.Transform(ctx, resp.Body, box)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, proxy.Outcome(err))
		p.logger.Info("image transform failed",
			zap.String("target", target.String()),
			zap.String("outcome", proxy.Outcome(err)),
			zap.Error(err),
		)
		return proxy.ImageResult{}, err
	}
	span.SetAttributes(
		attribute.String("image.source_mime", result.Descriptor.MIME),
		attribute.Bool("image.passthrough", result.Passthrough),
	)
	return result, nil
}

// Transform runs sniff, fit and re-encode over an already fetched body.
// Decoder panics are reported as ErrEncodeFailed.
func (p *Pipeline) Transform(ctx context.Context, body []byte, box proxy.FitTarget) (result proxy.ImageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = proxy.ImageResult{}
			err = fmt.Errorf("%w: decoder panic: %v", proxy.ErrEncodeFailed, r)
		}
	}()

	sniffed, err := Sniff(body)
	if err != nil {
		return proxy.ImageResult{}, err
	}
	if !sniffed.Reencodable() {
		return proxy.ImageResult{
			Body:        body,
			ContentType: sniffed.MIME,
			Passthrough: true,
			Descriptor:  proxy.ImageDescriptor{MIME: sniffed.MIME, Extension: sniffed.Extension},
		}, nil
	}

	desc, err := Describe(body, sniffed)
	if err != nil {
		return proxy.ImageResult{}, err
	}
	w, h := Fit(desc.Width, desc.Height, box, desc.Vector)

	if err := ctx.Err(); err != nil {
		return proxy.ImageResult{}, fmt.Errorf("before encode: %w", err)
	}
	img, err := render(body, desc, w, h)
	if err != nil {
		return proxy.ImageResult{}, err
	}

	var buf bytes.Buffer
	start := time.Now()
	if err := p.encoder.Encode(&buf, img); err != nil {
		return proxy.ImageResult{}, fmt.Errorf("%w: %v", proxy.ErrEncodeFailed, err)
	}
	metrics.ObserveEncode(desc.MIME, time.Since(start))
	if buf.Len() == 0 {
		return proxy.ImageResult{}, fmt.Errorf("%w: encoder produced no output", proxy.ErrEncodeFailed)
	}

	return proxy.ImageResult{
		Body:        buf.Bytes(),
		ContentType: p.encoder.ContentType(),
		Descriptor:  desc,
		Width:       w,
		Height:      h,
	}, nil
}
