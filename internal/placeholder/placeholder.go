// Package placeholder renders the deterministic "image not found" assets
// served when an image cannot be proxied.
package placeholder

import (
	"fmt"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// ContentType of every placeholder asset.
const ContentType = "image/svg+xml"

const (
	background = "#f0f0f0"
	iconPath   = "m21.9 21.9-6.1-6.1-2.69-2.69L5 5 3.59 3.59 2.1 2.1.69 3.51 3 5.83V19c0 1.1.9 2 2 2h13.17l2.31 2.31 1.42-1.41zM5 19V7.83l6.84 6.84-.84 1.05L9 13l-3 4h8.17l2 2H5zM7.83 5l-2-2H19c1.1 0 2 .9 2 2v13.17l-2-2V5H7.83z"
	caption    = "OG Image Not Found"

	iconSize    = 64
	captionSize = 24
	gap         = 16
)

// Renderer holds pre-rendered placeholders. It is safe for concurrent use.
type Renderer struct {
	large []byte
	small []byte
}

// New renders both placeholders once.
func New() *Renderer {
	return &Renderer{
		large: renderLarge(proxy.PresetLarge.Width, proxy.PresetLarge.Height),
		small: renderSmall(proxy.PresetSmall.Width, proxy.PresetSmall.Height),
	}
}

// Large is the preview-sized placeholder with icon and caption.
func (r *Renderer) Large() []byte { return r.large }

// Small is the favicon-sized placeholder, icon only.
func (r *Renderer) Small() []byte { return r.small }

// For picks the placeholder matching box.
func (r *Renderer) For(box proxy.FitTarget) []byte {
	if box.Width <= proxy.PresetSmall.Width && box.Height <= proxy.PresetSmall.Height {
		return r.small
	}
	return r.large
}

func renderLarge(w, h int) []byte {
	// Icon and caption stacked and centered as one block.
	block := float64(iconSize + gap + captionSize)
	top := (float64(h) - block) / 2
	iconX := float64(w-iconSize) / 2
	baseline := top + iconSize + gap + captionSize*0.8

	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<rect width="%d" height="%d" fill="%s"/>`+
			`<svg x="%g" y="%g" width="%d" height="%d" viewBox="0 0 24 24" fill="#000">`+
			`<path fill="none" d="M0 0h24v24H0z"/><path d="%s"/></svg>`+
			`<text x="%g" y="%g" text-anchor="middle" font-family="Noto Sans, sans-serif" font-size="%d" fill="#000">%s</text>`+
			`</svg>`,
		w, h, w, h,
		w, h, background,
		iconX, top, iconSize, iconSize,
		iconPath,
		float64(w)/2, baseline, captionSize, caption,
	))
}

func renderSmall(w, h int) []byte {
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 24 24">`+
			`<rect width="24" height="24" fill="%s"/>`+
			`<path fill="none" d="M0 0h24v24H0z"/><path d="%s" fill="#000"/>`+
			`</svg>`,
		w, h, background, iconPath,
	))
}
