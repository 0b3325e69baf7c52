package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
)

const (
	behanceAPIBase     = "https://www.behance.net/v2"
	behancePublicKey   = "u_n_public"
	behanceMaxProjects = 20
)

// Behance scrapes behance.net profiles. The public API is tried first and
// the HTML profile page is the fallback.
type Behance struct {
	APIBase  string
	Renderer Renderer
}

func (b *Behance) Name() string { return "behance" }
func (b *Behance) Match(u *url.URL) bool { return hostIs(u, "behance.net") }
func (b *Behance) NeedsSession() bool { return true }

type behanceUser struct {
	User struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	} `json:"user"`
}

type behanceProjects struct {
	Projects []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"projects"`
}

func (b *Behance) Scrape(ctx context.Context, f *Fetcher, rawURL string) (*models.ScrapeResult, error) {
	// Project pages are always scraped as pages.
	if username := behanceUsername(rawURL); username != "" && !strings.Contains(rawURL, "/gallery/") {
		result, err := b.fromAPI(ctx, f, rawURL, username)
		if err == nil && len(result.ProjectLinks) > 0 {
			return result, nil
		}
		if err != nil {
			slog.Debug("behance api failed, falling back to page", "url", rawURL, "err", err)
		}
	}

	result, err := page(ctx, f, b.Renderer, rawURL)
	if err != nil {
		return nil, err
	}
	for _, l := range result.Links {
		if strings.Contains(l.Href, "/gallery/") {
			result.ProjectLinks = append(result.ProjectLinks, l.Href)
		}
	}
	return result, nil
}

func (b *Behance) fromAPI(ctx context.Context, f *Fetcher, rawURL, username string) (*models.ScrapeResult, error) {
	base := strings.TrimSuffix(b.APIBase, "/")
	if base == "" {
		base = behanceAPIBase
	}
	key := url.Values{"api_key": {behancePublicKey}}.Encode()

	var user behanceUser
	if err := f.GetJSON(ctx, fmt.Sprintf("%s/users/%s?%s", base, url.PathEscape(username), key), &user); err != nil {
		return nil, err
	}
	var projects behanceProjects
	if err := f.GetJSON(ctx, fmt.Sprintf("%s/users/%s/projects?%s", base, url.PathEscape(username), key), &projects); err != nil {
		return nil, err
	}

	name := user.User.DisplayName
	if name == "" {
		name = username
	}
	result := &models.ScrapeResult{
		URL:   rawURL,
		Title: name,
		Text:  "Behance Portfolio: " + name,
	}
	for i, p := range projects.Projects {
		if i >= behanceMaxProjects {
			break
		}
		if p.URL == "" {
			continue
		}
		result.ProjectLinks = append(result.ProjectLinks, p.URL)
		result.Links = append(result.Links, models.Link{Text: p.Name, Href: p.URL})
	}
	result.FullTextLength = len(result.Text)
	return result, nil
}

// behanceUsername returns the first path segment of a behance.net URL.
func behanceUsername(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segment, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	return segment
}
