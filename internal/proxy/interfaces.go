package proxy

import "context"

// Fetcher retrieves a target and buffers the whole body. Non-2xx responses
// are returned together with an *UpstreamError.
type Fetcher interface {
	Fetch(ctx context.Context, target FetchTarget) (UpstreamResponse, error)
}

// MetadataExtractor produces a MetadataRecord for a page.
type MetadataExtractor interface {
	Extract(ctx context.Context, target FetchTarget) (MetadataRecord, error)
}

// ImageProcessor fetches an image and fits it into box.
type ImageProcessor interface {
	Process(ctx context.Context, target FetchTarget, box FitTarget) (ImageResult, error)
}

// ResponseCache stores whole HTTP responses keyed by request identity.
// Implementations must be safe for concurrent use.
type ResponseCache interface {
	Get(ctx context.Context, key string) (CachedResponse, bool, error)
	Put(ctx context.Context, key string, resp CachedResponse) error
}

// Publisher pushes pipeline events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter throttles upstream fetches.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}
