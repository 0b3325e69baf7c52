package scraper

import (
	"context"
	"net/url"

	"github.com/jupark12/portfolio-grader/models"
)

// Designfolio scrapes designfolio.me sites. Every same-site page linked
// from a portfolio is a project page.
type Designfolio struct {
	Renderer Renderer
}

func (d *Designfolio) Name() string { return "designfolio" }
func (d *Designfolio) Match(u *url.URL) bool { return hostIs(u, "designfolio.me") }
func (d *Designfolio) NeedsSession() bool { return false }

func (d *Designfolio) Scrape(ctx context.Context, f *Fetcher, rawURL string) (*models.ScrapeResult, error) {
	result, err := page(ctx, f, d.Renderer, rawURL)
	if err != nil {
		return nil, err
	}
	if result.Title == "" {
		result.Title = "Designfolio Project"
	}
	result.ProjectLinks = sameSiteLinks(rawURL, result.Links, func(u *url.URL) bool {
		return u.Path != "" && u.Path != "/"
	})
	return result, nil
}
