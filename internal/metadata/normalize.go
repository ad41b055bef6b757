package metadata

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

// finalize resolves root-relative URLs and then decodes entities.
func (a *accumulator) finalize(origin *url.URL) proxy.MetadataRecord {
	image := resolve(origin, a.image)
	favicon := resolve(origin, a.favicon)

	title := a.title
	if title != a.fallback {
		title = unescape(title)
	}
	return proxy.MetadataRecord{
		Title:       title,
		Description: unescape(a.description),
		Image:       unescape(image),
		Favicon:     unescape(favicon),
	}
}

// resolve rewrites values starting with "/" against origin.
func resolve(origin *url.URL, v string) string {
	if origin == nil || !strings.HasPrefix(v, "/") {
		return v
	}
	ref, err := url.Parse(v)
	if err != nil {
		return v
	}
	return origin.ResolveReference(ref).String()
}

// unescape decodes HTML entities by parsing v as a fragment and taking
// its text content.
func unescape(v string) string {
	if !strings.ContainsRune(v, '&') {
		return v
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(v))
	if err != nil {
		return v
	}
	return doc.Find("body").Text()
}
