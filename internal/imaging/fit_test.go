package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

func TestFitWorkedExample(t *testing.T) {
	t.Parallel()

	w, h := Fit(800, 400, proxy.PresetLarge, false)
	assert.Equal(t, 314, w)
	assert.Equal(t, 157, h)
}

func TestFitTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		w, h         int
		box          proxy.FitTarget
		vector       bool
		wantW, wantH int
	}{
		{"tall raster", 400, 800, proxy.PresetLarge, false, 300, 600},
		{"exact box", 300, 157, proxy.PresetLarge, false, 300, 157},
		{"small raster is not enlarged", 100, 50, proxy.PresetLarge, false, 100, 50},
		{"square favicon downscaled", 64, 64, proxy.PresetSmall, false, 32, 32},
		{"tiny favicon kept", 16, 16, proxy.PresetSmall, false, 16, 16},
		{"svg enlarged past viewBox", 24, 24, proxy.PresetLarge, true, 300, 300},
		{"svg favicon", 16, 16, proxy.PresetSmall, true, 32, 32},
		{"zero width", 0, 10, proxy.PresetLarge, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, h := Fit(tt.w, tt.h, tt.box, tt.vector)
			assert.Equal(t, tt.wantW, w, "width")
			assert.Equal(t, tt.wantH, h, "height")
		})
	}
}

func TestFitNeverUpscalesRaster(t *testing.T) {
	t.Parallel()

	for w := 1; w <= 300; w += 7 {
		for h := 1; h <= 157; h += 5 {
			gotW, gotH := Fit(w, h, proxy.PresetLarge, false)
			if gotW > w || gotH > h {
				t.Fatalf("Fit(%d,%d) = %dx%d exceeds native size", w, h, gotW, gotH)
			}
		}
	}
}

func TestFitCoversBoxForLargeSources(t *testing.T) {
	t.Parallel()

	for _, src := range [][2]int{{1200, 630}, {630, 1200}, {1000, 1000}, {5000, 157}} {
		w, h := Fit(src[0], src[1], proxy.PresetLarge, false)
		assert.GreaterOrEqual(t, w, proxy.PresetLarge.Width, "src %v", src)
		assert.GreaterOrEqual(t, h, proxy.PresetLarge.Height, "src %v", src)
	}
}
