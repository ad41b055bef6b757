package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpstreamErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	connectErr := fmt.Errorf("fetch page: %w", &UpstreamError{URL: "https://example.com", Err: cause})
	require.ErrorIs(t, connectErr, ErrUpstreamUnavailable)
	require.ErrorIs(t, connectErr, cause)

	var upstream *UpstreamError
	require.ErrorAs(t, connectErr, &upstream)
	require.True(t, upstream.Connect())
	require.Contains(t, upstream.Error(), "unreachable")

	statusErr := &UpstreamError{URL: "https://example.com", StatusCode: 404, StatusText: "Not Found"}
	require.ErrorIs(t, statusErr, ErrUpstreamUnavailable)
	require.False(t, statusErr.Connect())
	require.Equal(t, "upstream https://example.com responded with 404 Not Found", statusErr.Error())
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{context.Canceled, "canceled"},
		{&UpstreamError{StatusCode: 500, StatusText: "Internal Server Error"}, "upstream_status"},
		{&UpstreamError{Err: errors.New("dial")}, "upstream_unavailable"},
		{fmt.Errorf("%w: empty", ErrValidation), "validation"},
		{fmt.Errorf("sniff: %w", ErrNotAnImage), "not_an_image"},
		{ErrUnrecognizedContent, "unrecognized_content"},
		{fmt.Errorf("%w: no output", ErrEncodeFailed), "encode_failed"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Outcome(tt.err), "err=%v", tt.err)
	}
}
