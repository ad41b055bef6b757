package imaging

import (
	"fmt"
	"image"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// maxOutputPixels bounds the canvas allocated for a fitted image.
const maxOutputPixels = 4096 * 4096

// render produces a w×h bitmap of body.
func render(body []byte, desc proxy.ImageDescriptor, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 || w*h > maxOutputPixels {
		return nil, fmt.Errorf("%w: output %dx%d out of range", proxy.ErrEncodeFailed, w, h)
	}
	if desc.Vector {
		return rasterizeSVG(body, w, h)
	}

	src, err := decodeRaster(body, desc.MIME)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", proxy.ErrEncodeFailed, desc.MIME, err)
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst, nil
}

func rasterizeSVG(body []byte, w, h int) (image.Image, error) {
	icon, err := readSVG(body)
	if err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return dst, nil
}
