// Package scraper turns portfolio and case-study pages into normalized
// ScrapeResults. One adapter exists per hosting platform and the Registry
// picks one by URL.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scraper")

// ErrEmptyPage is returned when a page yields no text and no links.
var ErrEmptyPage = errors.New("scraper: page has no extractable content")

// Renderer returns the HTML of a page after its scripts have run.
type Renderer interface {
	RenderHTML(ctx context.Context, rawURL string) ([]byte, error)
}

// SessionRenderer renders a page in a browsing session that has already
// visited parentURL.
type SessionRenderer interface {
	RenderHTMLAfter(ctx context.Context, parentURL, rawURL string) ([]byte, error)
}

// Adapter scrapes pages of one platform.
type Adapter interface {
	Name() string
	Match(u *url.URL) bool
	// Scrape extracts a page using f for every request.
	Scrape(ctx context.Context, f *Fetcher, rawURL string) (*models.ScrapeResult, error)
	// NeedsSession reports whether sub-pages should be fetched in the
	// navigation context of their parent portfolio.
	NeedsSession() bool
}

// Registry selects an adapter by URL pattern.
type Registry struct {
	fetcher  *Fetcher
	renderer Renderer
	adapters []Adapter
	fallback Adapter
}

// NewRegistry creates a Registry with every built-in adapter. renderer may
// be nil, in which case pages are fetched without running scripts.
func NewRegistry(fetcher *Fetcher, renderer Renderer) *Registry {
	return &Registry{
		fetcher:  fetcher,
		renderer: renderer,
		adapters: []Adapter{
			&Behance{APIBase: behanceAPIBase, Renderer: renderer},
			&Notion{Renderer: renderer},
			&Designfolio{Renderer: renderer},
		},
		fallback: &Generic{Renderer: renderer},
	}
}

// For returns the adapter responsible for rawURL.
func (r *Registry) For(rawURL string) Adapter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return r.fallback
	}
	for _, a := range r.adapters {
		if a.Match(u) {
			return a
		}
	}
	return r.fallback
}

// Scrape scrapes a top-level portfolio page.
func (r *Registry) Scrape(ctx context.Context, rawURL string) (*models.ScrapeResult, error) {
	adapter := r.For(rawURL)
	ctx, span := tracer.Start(ctx, "scrape:"+adapter.Name())
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	result, err := scrape(ctx, adapter, r.fetcher, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		return nil, err
	}
	return result, nil
}

// ScrapeProject scrapes a case-study page found on parentURL. Platforms that
// need navigation context get a fresh cookie session that visits the parent
// first. Rendered pages get the same treatment in one browser tab when the
// renderer supports it.
func (r *Registry) ScrapeProject(ctx context.Context, parentURL, rawURL string) (*models.ScrapeResult, error) {
	adapter := r.For(rawURL)
	ctx, span := tracer.Start(ctx, "scrape_project:"+adapter.Name())
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL), attribute.String("parent", parentURL))

	fetcher := r.fetcher
	if adapter.NeedsSession() && parentURL != "" {
		session, err := r.fetcher.Session()
		if err != nil {
			return nil, err
		}
		if _, ok := r.renderer.(SessionRenderer); ok {
			ctx = withParent(ctx, parentURL)
		} else {
			// The parent visit only seeds cookies; its failure is not the
			// item's failure.
			_, _ = session.Get(ctx, parentURL)
		}
		fetcher = session
	}

	result, err := scrape(ctx, adapter, fetcher, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		return nil, err
	}
	return result, nil
}

func scrape(ctx context.Context, a Adapter, f *Fetcher, rawURL string) (*models.ScrapeResult, error) {
	result, err := a.Scrape(ctx, f, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	if result.Text == "" && len(result.Links) == 0 && len(result.ProjectLinks) == 0 {
		return nil, fmt.Errorf("%s: %s: %w", a.Name(), rawURL, ErrEmptyPage)
	}
	result.Platform = a.Name()
	result.ProjectLinks = dedupe(result.ProjectLinks)
	return result, nil
}

type parentKey struct{}

// withParent marks ctx so that rendered pages are loaded after parentURL in
// the same browser session.
func withParent(ctx context.Context, parentURL string) context.Context {
	return context.WithValue(ctx, parentKey{}, parentURL)
}

func parentFrom(ctx context.Context) string {
	parent, _ := ctx.Value(parentKey{}).(string)
	return parent
}

// page fetches rawURL, rendered when a renderer is available, and extracts
// it.
func page(ctx context.Context, f *Fetcher, renderer Renderer, rawURL string) (*models.ScrapeResult, error) {
	var html []byte
	var err error
	sr, session := renderer.(SessionRenderer)
	switch parent := parentFrom(ctx); {
	case session && parent != "" && parent != rawURL:
		html, err = sr.RenderHTMLAfter(ctx, parent, rawURL)
	case renderer != nil:
		html, err = renderer.RenderHTML(ctx, rawURL)
	default:
		html, err = f.Get(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	return Extract(rawURL, html)
}

func hostIs(u *url.URL, domain string) bool {
	host := strings.ToLower(u.Hostname())
	return host == domain || strings.HasSuffix(host, "."+domain)
}
