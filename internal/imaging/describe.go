package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/gen2brain/avif"
	"github.com/srwiley/oksvg"
	xwebp "golang.org/x/image/webp"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// maxSourcePixels bounds what is decoded into memory.
const maxSourcePixels = 64 << 20

// Describe reads the pixel dimensions of an allow-listed body. SVG sizes
// come from the viewBox.
func Describe(body []byte, s Sniffed) (proxy.ImageDescriptor, error) {
	desc := proxy.ImageDescriptor{MIME: s.MIME, Extension: s.Extension}
	if s.MIME == MIMESVG {
		icon, err := readSVG(body)
		if err != nil {
			return desc, err
		}
		desc.Vector = true
		desc.Width = int(math.Ceil(icon.ViewBox.W))
		desc.Height = int(math.Ceil(icon.ViewBox.H))
	} else {
		cfg, err := decodeConfig(body, s.MIME)
		if err != nil {
			return desc, fmt.Errorf("%w: read %s dimensions: %v", proxy.ErrEncodeFailed, s.MIME, err)
		}
		desc.Width, desc.Height = cfg.Width, cfg.Height
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return desc, fmt.Errorf("%w: %s has no usable dimensions", proxy.ErrEncodeFailed, s.MIME)
	}
	if !desc.Vector && desc.Width*desc.Height > maxSourcePixels {
		return desc, fmt.Errorf("%w: %dx%d exceeds decode limit", proxy.ErrEncodeFailed, desc.Width, desc.Height)
	}
	return desc, nil
}

func decodeConfig(body []byte, mime string) (image.Config, error) {
	r := bytes.NewReader(body)
	switch mime {
	case MIMEJPEG:
		return jpeg.DecodeConfig(r)
	case MIMEPNG:
		return png.DecodeConfig(r)
	case MIMEWebP:
		return xwebp.DecodeConfig(r)
	case MIMEAVIF:
		return avif.DecodeConfig(r)
	default:
		return image.Config{}, fmt.Errorf("no decoder for %s", mime)
	}
}

func decodeRaster(body []byte, mime string) (image.Image, error) {
	r := bytes.NewReader(body)
	switch mime {
	case MIMEJPEG:
		return jpeg.Decode(r)
	case MIMEPNG:
		return png.Decode(r)
	case MIMEWebP:
		return xwebp.Decode(r)
	case MIMEAVIF:
		return avif.Decode(r)
	default:
		return nil, fmt.Errorf("no decoder for %s", mime)
	}
}

func readSVG(body []byte) (*oksvg.SvgIcon, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(body), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: parse svg: %v", proxy.ErrEncodeFailed, err)
	}
	return icon, nil
}
