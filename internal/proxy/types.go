package proxy

import (
	"net/http"
	"net/url"
	"time"
)

// FetchTarget is a validated absolute http(s) URL. Build one with ParseTarget.
type FetchTarget struct {
	// Raw is the query value exactly as the client sent it.
	Raw string
	url *url.URL
}

// URL returns a copy of the parsed target.
func (t FetchTarget) URL() *url.URL {
	if t.url == nil {
		return nil
	}
	cp := *t.url
	return &cp
}

// String returns the normalized URL string.
func (t FetchTarget) String() string {
	if t.url == nil {
		return ""
	}
	return t.url.String()
}

// Origin returns scheme://host[:port] of the target with no path.
func (t FetchTarget) Origin() *url.URL {
	if t.url == nil {
		return nil
	}
	return &url.URL{Scheme: t.url.Scheme, Host: t.url.Host}
}

// UpstreamResponse is the fully buffered result of fetching a FetchTarget.
type UpstreamResponse struct {
	URL        string
	StatusCode int
	StatusText string
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the upstream answered with a 2xx status.
func (r UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// MetadataRecord is the JSON payload of the /og endpoint.
type MetadataRecord struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
}

// ImageDescriptor describes a fetched binary after sniffing and sizing.
type ImageDescriptor struct {
	MIME      string `json:"mime"`
	Extension string `json:"ext"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Vector    bool   `json:"vector"`
}

// FitTarget is the bounding box an image is fit into.
type FitTarget struct {
	Name   string
	Width  int
	Height int
}

// Output presets.
var (
	PresetLarge = FitTarget{Name: "large", Width: 300, Height: 157}
	PresetSmall = FitTarget{Name: "small", Width: 32, Height: 32}
)

// ImageResult is what the image pipeline hands back to the API layer.
type ImageResult struct {
	Body        []byte
	ContentType string
	Passthrough bool
	Descriptor  ImageDescriptor
	Width       int
	Height      int
}

// CachedResponse is a stored HTTP response replayed verbatim on a cache hit.
type CachedResponse struct {
	Status    int         `json:"status"`
	Header    http.Header `json:"header"`
	Body      []byte      `json:"body"`
	StoredAt  time.Time   `json:"stored_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (c CachedResponse) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// PipelineEvent is published after every pipeline invocation.
type PipelineEvent struct {
	RequestID   string    `json:"request_id,omitempty"`
	Route       string    `json:"route"`
	Target      string    `json:"target"`
	Outcome     string    `json:"outcome"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Bytes       int       `json:"bytes"`
	DurationMs  int64     `json:"duration_ms"`
	At          time.Time `json:"at"`
}
