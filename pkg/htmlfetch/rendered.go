package htmlfetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"moverscan/pkg/errs"
	"moverscan/pkg/logger"
	"moverscan/pkg/metrics"
)

// Renderer drives a single shared headless Chrome for sources that only
// populate their tables via script. The browser is launched lazily on the
// first fetch and reused for every call; each call gets its own tab which is
// always closed. Shutdown tears the browser down exactly once.
type Renderer struct {
	timeout time.Duration
	settle  time.Duration

	mu          sync.Mutex
	browserCtx  context.Context
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc

	closeOnce sync.Once
}

func NewRenderer(timeout, settle time.Duration) *Renderer {
	return &Renderer{timeout: timeout, settle: settle}
}

// browser returns the shared browser context, launching Chrome on first use.
func (r *Renderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so a broken Chrome install fails the
	// first fetch instead of hanging every later one.
	if err := chromedp.Run(browserCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, errs.New(errs.KindUpstreamUnavailable, "launch headless browser", err)
	}

	logger.Log.Info("headless browser launched")
	r.browserCtx = browserCtx
	r.allocCancel = allocCancel
	r.tabCancel = tabCancel
	return browserCtx, nil
}

// Fetch renders rawURL in a fresh tab and returns the fully rendered
// document. The tab waits for page load, then an extra settle delay so
// deferred script-driven content can populate.
func (r *Renderer) Fetch(ctx context.Context, rawURL string) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", err
	}

	metrics.FetchAttempts.WithLabelValues(hostOf(rawURL), "rendered").Inc()
	start := time.Now()
	defer func() {
		metrics.FetchLatency.WithLabelValues(hostOf(rawURL), "rendered").Observe(time.Since(start).Seconds())
	}()

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	// The tab is always closed, success or failure; the browser stays up.
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	// Honor caller cancellation as well.
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-tabCtx.Done():
		}
	}()

	headers := network.Headers{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
		"DNT":                       "1",
	}

	var html string
	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Hide the automation signal before any page script runs.
			_, err := page.AddScriptToEvaluateOnNewDocument(
				`Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`,
			).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		logger.Log.Warn("rendered fetch failed",
			zap.String("url", rawURL), zap.Error(err))
		metrics.FetchErrors.WithLabelValues(hostOf(rawURL), errs.KindUpstreamUnavailable.String()).Inc()
		return "", errs.New(errs.KindUpstreamUnavailable, "render "+rawURL, err)
	}
	return html, nil
}

// Shutdown closes the shared browser. Safe to call multiple times and before
// the browser was ever launched.
func (r *Renderer) Shutdown() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.browserCtx == nil {
			return
		}
		r.tabCancel()
		r.allocCancel()
		r.browserCtx = nil
		logger.Log.Info("headless browser closed")
	})
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}
