package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	maxBodySize = 5 * 1024 * 1024
)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Timeout time.Duration
	// RatePerHost is the number of requests per second sent to one host.
	RatePerHost float64
}

// Fetcher downloads pages politely: requests to the same host are spaced
// by a per-host rate limiter shared by every session.
type Fetcher struct {
	http     *resty.Client
	opts     FetcherOptions
	limiters *hostLimiters
}

type hostLimiters struct {
	mu       sync.Mutex
	rate     float64
	limiters map[string]*rate.Limiter
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.rate), 1)
		h.limiters[host] = l
	}
	return l
}

// NewFetcher creates a Fetcher without cookie state.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RatePerHost <= 0 {
		opts.RatePerHost = 2
	}
	return &Fetcher{
		http: newRestyClient(opts.Timeout),
		opts: opts,
		limiters: &hostLimiters{
			rate:     opts.RatePerHost,
			limiters: make(map[string]*rate.Limiter),
		},
	}
}

func newRestyClient(timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return client
}

// Session returns a Fetcher that keeps cookies across requests, so a page
// can be visited in the navigation context of another.
func (f *Fetcher) Session() (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := newRestyClient(f.opts.Timeout)
	client.SetCookieJar(jar)
	return &Fetcher{http: client, opts: f.opts, limiters: f.limiters}, nil
}

func (f *Fetcher) wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return f.limiters.get(strings.ToLower(u.Host)).Wait(ctx)
}

// Get downloads rawURL and returns its body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return f.get(ctx, rawURL, "")
}

// GetWithReferer downloads rawURL as if navigated to from referer.
func (f *Fetcher) GetWithReferer(ctx context.Context, rawURL, referer string) ([]byte, error) {
	return f.get(ctx, rawURL, referer)
}

func (f *Fetcher) get(ctx context.Context, rawURL, referer string) ([]byte, error) {
	if err := f.wait(ctx, rawURL); err != nil {
		return nil, err
	}
	req := f.http.R().SetContext(ctx)
	if referer != "" {
		req.SetHeader("referer", referer)
	}
	res, err := req.Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if res.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d for %s", res.StatusCode(), rawURL)
	}
	body := res.Body()
	if len(body) > maxBodySize {
		body = body[:maxBodySize]
	}
	return body, nil
}

// GetJSON downloads rawURL and decodes it into out.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}
