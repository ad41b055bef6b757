package imaging

import (
	"fmt"
	"image"
	"io"

	"github.com/gen2brain/webp"
)

// DefaultQuality is the WebP quality used when none is configured.
const DefaultQuality = 75

// Encoder writes an image in a fixed output format.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	ContentType() string
}

// WebPEncoder encodes lossy WebP.
type WebPEncoder struct {
	Quality int
}

// Encode implements Encoder.
func (e WebPEncoder) Encode(w io.Writer, img image.Image) error {
	q := e.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	if err := webp.Encode(w, img, webp.Options{Quality: q}); err != nil {
		return fmt.Errorf("webp encode: %w", err)
	}
	return nil
}

// ContentType implements Encoder.
func (WebPEncoder) ContentType() string {
	return "image/webp"
}
