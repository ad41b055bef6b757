// Package metadata extracts Open Graph and HTML head metadata from pages.
package metadata

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

type scanState int

const (
	stateScanning scanState = iota
	stateDone
)

// accumulator collects first-match values in source-escaped form.
type accumulator struct {
	fallback    string
	title       string
	description string
	image       string
	favicon     string
}

func newAccumulator(fallback string) *accumulator {
	return &accumulator{fallback: fallback, title: fallback}
}

// offerTitle replaces the title only while it still holds the fallback.
func (a *accumulator) offerTitle(v string) {
	if v == "" || a.title != a.fallback {
		return
	}
	a.title = v
}

func (a *accumulator) offerDescription(v string) { setOnce(&a.description, v) }
func (a *accumulator) offerImage(v string)       { setOnce(&a.image, v) }
func (a *accumulator) offerFavicon(v string)     { setOnce(&a.favicon, v) }

func setOnce(field *string, v string) {
	if v == "" || *field != "" {
		return
	}
	*field = v
}

// Scan runs a single forward pass over the document and returns the
// normalized record. fallback is the title used when the page offers none;
// relative image and favicon paths are resolved against origin. Malformed or
// empty input yields a record holding only the fallback title.
func Scan(r io.Reader, fallback string, origin *url.URL) proxy.MetadataRecord {
	acc := newAccumulator(fallback)
	z := html.NewTokenizer(r)

	var (
		inTitle   bool
		titleText strings.Builder
	)
	for state := stateScanning; state != stateDone; {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			state = stateDone
		case html.TextToken:
			if inTitle {
				titleText.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.Title:
				if tt == html.StartTagToken {
					inTitle = true
					titleText.Reset()
				}
			case atom.Meta:
				if hasAttr {
					acc.visitMeta(readAttrs(z))
				}
			case atom.Link:
				if hasAttr {
					acc.visitLink(readAttrs(z))
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && atom.Lookup(name) == atom.Title {
				inTitle = false
				acc.offerTitle(sourceForm(titleText.String()))
			}
		}
	}
	return acc.finalize(origin)
}

func (a *accumulator) visitMeta(attrs map[string]string) {
	content := sourceForm(attrs["content"])
	switch attrs["property"] {
	case "og:title":
		a.offerTitle(content)
	case "og:description":
		a.offerDescription(content)
	case "og:image":
		a.offerImage(content)
	}
	switch attrs["name"] {
	case "title":
		a.offerTitle(content)
	case "description":
		a.offerDescription(content)
	case "image":
		a.offerImage(content)
	}
}

func (a *accumulator) visitLink(attrs map[string]string) {
	switch attrs["rel"] {
	case "icon", "shortcut icon":
		a.offerFavicon(sourceForm(attrs["href"]))
	}
}

func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string, 4)
	for {
		key, val, more := z.TagAttr()
		k := string(key)
		if _, seen := attrs[k]; !seen {
			attrs[k] = string(val)
		}
		if !more {
			return attrs
		}
	}
}

// sourceForm trims v and restores entity escaping, since the tokenizer
// hands back decoded text and normalization decodes exactly once.
func sourceForm(v string) string {
	return html.EscapeString(strings.TrimSpace(v))
}
