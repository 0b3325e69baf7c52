package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// scrollJS scrolls to the bottom so lazily loaded content renders.
const scrollJS = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0); true`

// BrowserOptions configures the headless browser.
type BrowserOptions struct {
	Width, Height int
	// NavigationTimeout bounds one page visit.
	NavigationTimeout time.Duration
	// Settle is how long to wait after scrolling before capturing.
	Settle time.Duration
	ExecPath string
}

// Browser drives one shared headless Chrome. Each capture runs in its own
// tab. The browser is started on first use.
type Browser struct {
	opts BrowserOptions

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowser creates a Browser.
func NewBrowser(opts BrowserOptions) *Browser {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1920, 1080
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 1500 * time.Millisecond
	}
	return &Browser{opts: opts}
}

func (b *Browser) start() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil {
		return b.browserCtx, nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	return browserCtx, nil
}

// tab opens a new tab that is closed when ctx is done, when timeout passes
// or when the returned cancel func is called.
func (b *Browser) tab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	browserCtx, err := b.start()
	if err != nil {
		return nil, nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancelTab)
	return tabCtx, func() {
		stop()
		cancelTimeout()
		cancelTab()
	}, nil
}

func (b *Browser) load(rawURL string) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(b.opts.Width), int64(b.opts.Height)),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(scrollJS, nil),
		chromedp.Sleep(b.opts.Settle),
	}
	// Notion keeps long-polling connections open; give its client-side
	// renderer extra time instead.
	if strings.Contains(rawURL, "notion.so") || strings.Contains(rawURL, "notion.site") {
		tasks = append(tasks, chromedp.Sleep(3*time.Second))
	}
	return tasks
}

// Capture returns a full-page PNG screenshot of rawURL.
func (b *Browser) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	tabCtx, cancel, err := b.tab(ctx, b.opts.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tabCtx, b.load(rawURL), chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capture %s: %w", rawURL, err)
	}
	return buf, nil
}

// RenderHTML returns the document HTML of rawURL after scripts have run.
func (b *Browser) RenderHTML(ctx context.Context, rawURL string) ([]byte, error) {
	tabCtx, cancel, err := b.tab(ctx, b.opts.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var html string
	if err := chromedp.Run(tabCtx, b.load(rawURL), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}
	return []byte(html), nil
}

// RenderHTMLAfter visits parentURL and then rawURL in the same tab, so the
// second page loads with the cookies and referrer of the first. A failed
// parent visit is logged and rawURL is still rendered.
func (b *Browser) RenderHTMLAfter(ctx context.Context, parentURL, rawURL string) ([]byte, error) {
	tabCtx, cancel, err := b.tab(ctx, 2*b.opts.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	// Open the tab before bounding the parent visit, so its timeout
	// does not close the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}
	parentCtx, cancelParent := context.WithTimeout(tabCtx, b.opts.NavigationTimeout)
	if err := chromedp.Run(parentCtx, b.load(parentURL)); err != nil {
		slog.Debug("parent visit failed", "parent", parentURL, "url", rawURL, "err", err)
	}
	cancelParent()

	var html string
	if err := chromedp.Run(tabCtx, b.load(rawURL), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}
	return []byte(html), nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCancel != nil {
		b.browserCancel()
		b.allocCancel()
		b.browserCtx = nil
	}
}
