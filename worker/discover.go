package worker

import (
	"net/url"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
)

// Discover returns the case-study URLs listed in a portfolio analysis, in
// the order they first appear. Blank entries are dropped, relative URLs are
// resolved against base and duplicates are removed.
func Discover(base string, a *models.PortfolioAnalysis) []string {
	if a == nil || a.StructuredContent == nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		baseURL = nil
	}

	seen := make(map[string]bool)
	var urls []string
	for _, p := range a.StructuredContent.Projects {
		u := strings.TrimSpace(p.URL)
		if u == "" {
			continue
		}
		if baseURL != nil {
			if ref, err := url.Parse(u); err == nil && !ref.IsAbs() {
				u = baseURL.ResolveReference(ref).String()
			}
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}
