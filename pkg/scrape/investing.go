package scrape

import (
	"context"

	"go.uber.org/zap"

	"moverscan/pkg/logger"
	"moverscan/pkg/models"
)

const (
	investingPreMarketURL  = "https://www.investing.com/equities/pre-market"
	investingGainersURL    = "https://www.investing.com/equities/top-stock-gainers"
	investingLosersURL     = "https://www.investing.com/equities/top-stock-losers"
	investingAfterHoursURL = "https://www.investing.com/equities/after-hours"
)

// Investing tables put the company name before the symbol.
var investingRoles = []columnRole{colName, colSymbol, colPrice, colChange, colPercentOrVolume, colVolume}

// Investing scrapes one investing.com equities page. The pages render their
// tables client-side, so the fetcher must be the rendered one. All four
// window variants share the same shape: a whole-document table scan first,
// then a page-specific container selector when the scan yields nothing.
type Investing struct {
	fetch    TextFetcher
	url      string
	window   models.Window
	fallback string
	category models.Category // fixed for the gainers/losers pages
}

func NewInvestingPreMarket(fetch TextFetcher) *Investing {
	return &Investing{
		fetch:    fetch,
		url:      investingPreMarketURL,
		window:   models.WindowPre,
		fallback: `[data-test="pre-market-table"], .pre-market-table`,
	}
}

func NewInvestingGainers(fetch TextFetcher) *Investing {
	return &Investing{
		fetch:    fetch,
		url:      investingGainersURL,
		window:   models.WindowActive,
		fallback: `[data-test="price-movers-table"], .price-movers-table`,
		category: models.CategoryGainer,
	}
}

func NewInvestingLosers(fetch TextFetcher) *Investing {
	return &Investing{
		fetch:    fetch,
		url:      investingLosersURL,
		window:   models.WindowActive,
		fallback: `[data-test="price-movers-table"], .price-movers-table`,
		category: models.CategoryLoser,
	}
}

func NewInvestingAfterHours(fetch TextFetcher) *Investing {
	return &Investing{
		fetch:    fetch,
		url:      investingAfterHoursURL,
		window:   models.WindowAfter,
		fallback: `[data-test="after-hours-table"], .after-hours-table`,
	}
}

func (a *Investing) Name() string          { return "investing" }
func (a *Investing) Window() models.Window { return a.window }

func (a *Investing) Scrape(ctx context.Context) ([]models.RawQuote, error) {
	html, err := a.fetch.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}
	return a.parse(html), nil
}

func (a *Investing) parse(html string) []models.RawQuote {
	doc, err := parseDocument(html)
	if err != nil {
		logger.Log.Warn("investing: bad document",
			zap.String("url", a.url), zap.Error(err))
		return nil
	}

	rows := locateRows(doc, allTableRows, selectorRows(a.fallback))
	quotes := collectRows(rows, investingRoles, a.Name(), a.category)
	logger.Log.Info("investing scraped",
		zap.String("window", a.window.String()), zap.Int("quotes", len(quotes)))
	return quotes
}
