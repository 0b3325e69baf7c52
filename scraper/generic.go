package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
)

var projectPathMarkers = []string{"/work/", "/project", "/case-stud", "/casestud", "/portfolio/"}

// Generic scrapes any site as plain HTML.
type Generic struct {
	Renderer Renderer
}

func (g *Generic) Name() string { return "generic" }
func (g *Generic) Match(u *url.URL) bool { return true }
func (g *Generic) NeedsSession() bool { return false }

func (g *Generic) Scrape(ctx context.Context, f *Fetcher, rawURL string) (*models.ScrapeResult, error) {
	result, err := page(ctx, f, g.Renderer, rawURL)
	if err != nil {
		return nil, err
	}
	result.ProjectLinks = sameSiteLinks(rawURL, result.Links, func(u *url.URL) bool {
		p := strings.ToLower(u.Path)
		for _, marker := range projectPathMarkers {
			if strings.Contains(p, marker) {
				return true
			}
		}
		return false
	})
	return result, nil
}

// sameSiteLinks returns links on the page's own host, other than the page
// itself, that satisfy keep.
func sameSiteLinks(pageURL string, links []models.Link, keep func(*url.URL) bool) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	for _, l := range links {
		u, err := url.Parse(l.Href)
		if err != nil || !strings.EqualFold(u.Host, base.Host) {
			continue
		}
		if strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(base.Path, "/") {
			continue
		}
		if keep(u) {
			out = append(out, l.Href)
		}
	}
	return out
}
