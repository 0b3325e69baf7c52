package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
)

// notionIDLen is the minimum length of the id suffix of a Notion page slug.
const notionIDLen = 12

// Notion scrapes notion.site pages. Projects usually live in a linked
// database view, which is loaded to find the project pages.
type Notion struct {
	Renderer Renderer
}

func (n *Notion) Name() string { return "notion" }

func (n *Notion) Match(u *url.URL) bool {
	return hostIs(u, "notion.site") || hostIs(u, "notion.so")
}

func (n *Notion) NeedsSession() bool { return true }

func (n *Notion) Scrape(ctx context.Context, f *Fetcher, rawURL string) (*models.ScrapeResult, error) {
	result, err := page(ctx, f, n.Renderer, rawURL)
	if err != nil {
		return nil, err
	}

	var dbLinks []string
	for _, l := range result.Links {
		if strings.Contains(l.Href, "?v=") || strings.Contains(l.Href, "?p=") {
			dbLinks = append(dbLinks, l.Href)
		}
	}
	if len(dbLinks) == 0 {
		return result, nil
	}

	db, err := page(ctx, f, n.Renderer, dbLinks[0])
	if err != nil {
		slog.Warn("could not load notion database view", "url", dbLinks[0], "err", err)
		return result, nil
	}
	for _, l := range db.Links {
		if isNotionPage(l.Href) {
			result.ProjectLinks = append(result.ProjectLinks, l.Href)
		}
	}
	return result, nil
}

// isNotionPage reports whether href looks like a page slug such as
// https://x.notion.site/Checkout-Redesign-0123456789abcdef.
func isNotionPage(href string) bool {
	if !strings.HasPrefix(href, "https") {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	segments := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	i := strings.LastIndex(last, "-")
	return i >= 0 && len(last)-i-1 >= notionIDLen
}
