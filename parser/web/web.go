package web

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// skippedSchemes are href prefixes that never point at an article
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Extractor collects absolute links from HTML pages
type Extractor struct{}

// New creates a new link extractor
func New() Extractor {
	return Extractor{}
}

// Links returns the unique absolute http(s) URLs linked from body, resolved
// against baseURL, in document order. Unparseable HTML yields no links.
func (e Extractor) Links(baseURL string, body []byte) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		slog.Debug("invalid base url", "url", baseURL, "error", err)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Debug("failed to parse html", "url", baseURL, "error", err)
		return nil
	}

	// <base href> overrides the document URL for relative links
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, ok := resolve(base, href)
		if !ok {
			return
		}
		if _, exists := seen[target]; exists {
			return
		}
		seen[target] = struct{}{}
		links = append(links, target)
	})

	return links
}

// resolve turns href into an absolute URL without fragment
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	target, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return "", false
	}
	if target.Host == "" {
		return "", false
	}
	target.Fragment = ""
	target.RawFragment = ""
	return target.String(), true
}
