// Package htmlfetch retrieves raw HTML from upstream sources. Two strategies
// exist: a plain HTTP GET with browser-like headers and retry/backoff, and a
// headless-browser rendered fetch for pages that only populate via script.
package htmlfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"moverscan/pkg/errs"
	"moverscan/pkg/logger"
	"moverscan/pkg/metrics"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher issues plain GETs that look like a desktop browser. Sources behind
// script-rendered pages need a Renderer instead.
type Fetcher struct {
	client     *http.Client
	retries    int
	retryDelay time.Duration
}

func New(timeout time.Duration, retries int, retryDelay time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		retries:    retries,
		retryDelay: retryDelay,
	}
}

// Fetch GETs rawURL and returns the response body as text. HTTP 403 and
// transport failures are retried with exponential backoff, the request
// headers shifting to same-site navigation on each retry. Exhausted retries
// surface the last failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errs.New(errs.KindInvalidArgument, "bad fetch url", err)
	}
	origin := u.Scheme + "://" + u.Host

	var body string
	attempt := 0

	op := func() error {
		metrics.FetchAttempts.WithLabelValues(u.Host, "plain").Inc()
		start := time.Now()
		err := f.fetchOnce(ctx, rawURL, origin, attempt, &body)
		metrics.FetchLatency.WithLabelValues(u.Host, "plain").Observe(time.Since(start).Seconds())
		attempt++
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.retries)), ctx))
	if err != nil {
		metrics.FetchErrors.WithLabelValues(u.Host, errs.KindOf(err).String()).Inc()
		return "", err
	}
	return body, nil
}

// fetchOnce performs a single attempt. Errors wrapped in backoff.Permanent
// stop the retry loop immediately.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL, origin string, attempt int, out *string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(errs.New(errs.KindInvalidArgument, "build request", err))
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("DNT", "1")
	if attempt == 0 {
		// First visit: arriving from a search result.
		req.Header.Set("Referer", "https://www.google.com/")
		req.Header.Set("Sec-Fetch-Site", "none")
	} else {
		// Retries pose as continued same-site navigation.
		req.Header.Set("Referer", rawURL)
		req.Header.Set("Origin", origin)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errs.New(errs.KindUpstreamUnavailable, "fetch "+rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.New(errs.KindUpstreamUnavailable, "read body "+rawURL, err)
		}
		*out = string(data)
		return nil

	case resp.StatusCode == http.StatusForbidden:
		if ray := resp.Header.Get("CF-Ray"); ray != "" {
			logger.Log.Warn("cloudflare block detected",
				zap.String("url", rawURL), zap.String("cf_ray", ray))
		}
		logger.Log.Warn("got 403, will retry",
			zap.String("url", rawURL), zap.Int("attempt", attempt))
		return errs.Newf(errs.KindUpstreamBlocked, "403 from %s", rawURL)

	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(errs.Newf(errs.KindNotFound, "404 from %s", rawURL))

	default:
		// Other statuses are not retried; a 500 today is a 500 next cycle.
		return backoff.Permanent(errs.Newf(errs.KindUpstreamUnavailable,
			"status %d from %s", resp.StatusCode, rawURL))
	}
}
