package proxy

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify.
var (
	ErrValidation          = errors.New("invalid target")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotAnImage          = errors.New("not an image")
	ErrUnrecognizedContent = errors.New("unrecognized content")
	ErrEncodeFailed        = errors.New("encode failed")
)

// UpstreamError carries the detail of an ErrUpstreamUnavailable failure.
// StatusCode is zero when the upstream could not be reached at all.
type UpstreamError struct {
	URL        string
	StatusCode int
	StatusText string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s responded with %d %s", e.URL, e.StatusCode, e.StatusText)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s unreachable: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upstream %s unreachable", e.URL)
}

// Unwrap exposes both the kind and the transport cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamUnavailable}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}

// Connect reports whether the failure happened before any status was received.
func (e *UpstreamError) Connect() bool {
	return e.StatusCode == 0
}

// Outcome labels err for metrics and events.
func Outcome(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &upstream) && !upstream.Connect():
		return "upstream_status"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotAnImage):
		return "not_an_image"
	case errors.Is(err, ErrUnrecognizedContent):
		return "unrecognized_content"
	case errors.Is(err, ErrEncodeFailed):
		return "encode_failed"
	default:
		return "error"
	}
}
