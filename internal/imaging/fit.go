package imaging

import (
	"math"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// Fit computes output dimensions for a w×h source in box. The short side is
// fit to the box and the long side scaled proportionally. Raster sources are
// never enlarged past their native size; vector sources are exempt.
func Fit(w, h int, box proxy.FitTarget, vector bool) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	hByWidth := int(math.Ceil(float64(box.Width) / float64(w) * float64(h)))
	wByHeight := int(math.Ceil(float64(box.Height) / float64(h) * float64(w)))

	candidateH := max(hByWidth, box.Height)
	candidateW := max(wByHeight, box.Width)
	if vector {
		return candidateW, candidateH
	}
	return min(w, candidateW), min(h, candidateH)
}
