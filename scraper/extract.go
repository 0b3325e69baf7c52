package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jupark12/portfolio-grader/models"
)

const (
	MaxExtractLen = 50_000
	maxAnchors    = 500
)

// Extract parses an HTML page into a ScrapeResult. Links are resolved
// against pageURL.
func Extract(pageURL string, html []byte) (*models.ScrapeResult, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	result := &models.ScrapeResult{
		URL:             pageURL,
		Title:           collapse(doc.Find("h1").First().Text()),
		MetaDescription: strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
		TotalImages:     doc.Find("img").Length(),
	}
	if result.Title == "" {
		result.Title = collapse(doc.Find("title").First().Text())
	}

	doc.Find("h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			result.Headings = append(result.Headings, models.Heading{
				Level: goquery.NodeName(s),
				Text:  text,
			})
		}
	})

	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxAnchors {
			return false
		}
		if href, ok := resolve(base, s.AttrOr("href", "")); ok {
			result.Links = append(result.Links, models.Link{Text: collapse(s.Text()), Href: href})
		}
		return true
	})

	doc.Find("script, style, noscript, iframe, svg").Remove()
	text := collapse(doc.Find("body").Text())
	result.FullTextLength = len(text)
	if len(text) > MaxExtractLen {
		text = text[:MaxExtractLen]
	}
	result.Text = text

	return result, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(u)
	switch abs.Scheme {
	case "http", "https", "mailto", "tel":
	default:
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// dedupe keeps the first occurrence of each non-blank entry.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
