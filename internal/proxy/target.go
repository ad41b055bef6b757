package proxy

import (
	"fmt"
	"net/url"
)

// ParseTarget accepts raw only if it is an absolute URL whose scheme is
// exactly http or https. It performs no I/O.
func ParseTarget(raw string) (FetchTarget, error) {
	if raw == "" {
		return FetchTarget{}, fmt.Errorf("%w: empty", ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return FetchTarget{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return FetchTarget{}, fmt.Errorf("%w: scheme %q not allowed", ErrValidation, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return FetchTarget{}, fmt.Errorf("%w: missing host", ErrValidation)
	}
	return FetchTarget{Raw: raw, url: u}, nil
}

// MustParseTarget is ParseTarget for constants and tests.
func MustParseTarget(raw string) FetchTarget {
	t, err := ParseTarget(raw)
	if err != nil {
		panic(err)
	}
	return t
}
