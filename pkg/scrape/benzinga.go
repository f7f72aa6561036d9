package scrape

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"moverscan/pkg/logger"
	"moverscan/pkg/models"
)

const (
	benzingaPreMarketURL = "https://www.benzinga.com/premarket"
	benzingaMoversURL    = "https://www.benzinga.com/movers"
)

// BenzingaPreMarket scrapes the pre-market gainer and loser tables. The page
// groups each table under a heading, so rows are located by heading text
// with a whole-document table scan as fallback.
type BenzingaPreMarket struct {
	fetch TextFetcher
	url   string
}

func NewBenzingaPreMarket(fetch TextFetcher) *BenzingaPreMarket {
	return &BenzingaPreMarket{fetch: fetch, url: benzingaPreMarketURL}
}

func (a *BenzingaPreMarket) Name() string          { return "benzinga" }
func (a *BenzingaPreMarket) Window() models.Window { return models.WindowPre }

func (a *BenzingaPreMarket) Scrape(ctx context.Context) ([]models.RawQuote, error) {
	html, err := a.fetch.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}
	return a.parse(html), nil
}

func (a *BenzingaPreMarket) parse(html string) []models.RawQuote {
	doc, err := parseDocument(html)
	if err != nil {
		logger.Log.Warn("benzinga premarket: bad document", zap.Error(err))
		return nil
	}

	var quotes []models.RawQuote
	sections := []struct {
		marker   string
		category models.Category
	}{
		{"Premarket Gainers", models.CategoryGainer},
		{"Premarket Losers", models.CategoryLoser},
	}
	for _, s := range sections {
		rows := locateRows(doc, headingTableRows(s.marker))
		quotes = append(quotes, collectRows(rows, positionalRoles, a.Name(), s.category)...)
	}
	if len(quotes) == 0 {
		// Layout shifted under us; fall back to every table on the page and
		// let the sign of the percent change decide the category.
		rows := locateRows(doc, allTableRows)
		quotes = collectRows(rows, positionalRoles, a.Name(), "")
	}
	logger.Log.Info("benzinga premarket scraped", zap.Int("quotes", len(quotes)))
	return quotes
}

// BenzingaMovers scrapes the intraday movers page. Column order varies, so
// every table's headers are classified by text before falling back to
// positional assumptions.
type BenzingaMovers struct {
	fetch TextFetcher
	url   string
}

func NewBenzingaMovers(fetch TextFetcher) *BenzingaMovers {
	return &BenzingaMovers{fetch: fetch, url: benzingaMoversURL}
}

func (a *BenzingaMovers) Name() string          { return "benzinga" }
func (a *BenzingaMovers) Window() models.Window { return models.WindowActive }

func (a *BenzingaMovers) Scrape(ctx context.Context) ([]models.RawQuote, error) {
	html, err := a.fetch.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}
	return a.parse(html), nil
}

func (a *BenzingaMovers) parse(html string) []models.RawQuote {
	doc, err := parseDocument(html)
	if err != nil {
		logger.Log.Warn("benzinga movers: bad document", zap.Error(err))
		return nil
	}

	var quotes []models.RawQuote
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		roles := classifyColumns(tableHeaders(table))
		rows := table.Find("tbody tr")
		quotes = append(quotes, collectRows(rows, roles, a.Name(), "")...)
	})
	logger.Log.Info("benzinga movers scraped", zap.Int("quotes", len(quotes)))
	return quotes
}
