// Package imaging fits fetched images into a bounding box and re-encodes
// them as WebP.
package imaging

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Re-encodable source types.
const (
	MIMESVG  = "image/svg+xml"
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEAVIF = "image/avif"
)

var reencodable = map[string]struct{}{
	MIMESVG:  {},
	MIMEJPEG: {},
	MIMEPNG:  {},
	MIMEWebP: {},
	MIMEAVIF: {},
}

// Sniffed is the content type detected from a body's bytes.
type Sniffed struct {
	MIME      string
	Extension string
}

// Reencodable reports whether the type is on the re-encode allow-list.
func (s Sniffed) Reencodable() bool {
	_, ok := reencodable[s.MIME]
	return ok
}

// Sniff detects the true type of body, ignoring any declared header.
// It fails with ErrUnrecognizedContent when nothing matches and with
// ErrNotAnImage when the type is not image/*.
func Sniff(body []byte) (Sniffed, error) {
	if len(body) == 0 {
		return Sniffed{}, fmt.Errorf("%w: empty body", proxy.ErrUnrecognizedContent)
	}
	mt := mimetype.Detect(body)
	if mt.Is("application/octet-stream") {
		return Sniffed{}, fmt.Errorf("%w: no known signature", proxy.ErrUnrecognizedContent)
	}
	base, _, _ := strings.Cut(mt.String(), ";")
	base = strings.TrimSpace(base)
	if !strings.HasPrefix(base, "image/") {
		return Sniffed{}, fmt.Errorf("%w: sniffed %s", proxy.ErrNotAnImage, base)
	}
	return Sniffed{MIME: base, Extension: strings.TrimPrefix(mt.Extension(), ".")}, nil
}
