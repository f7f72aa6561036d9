// Package scrape turns raw HTML from the upstream sources into RawQuotes.
// Adapters are heuristic by necessity: the sources publish unversioned
// markup, so each adapter tolerates at least two layout variants and skips
// any row it cannot interpret instead of failing the batch.
package scrape

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"moverscan/pkg/metrics"
	"moverscan/pkg/models"
)

// TextFetcher retrieves one document as text. Satisfied by both the plain
// and the rendered fetcher in pkg/htmlfetch.
type TextFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Adapter scrapes one source for one window. Scrape returns whatever valid
// rows it could extract; a fetch failure is the only error it surfaces.
type Adapter interface {
	Name() string
	Window() models.Window
	Scrape(ctx context.Context) ([]models.RawQuote, error)
}

// collectRows walks candidate rows under the given column roles, recording
// parse metrics per source. fixed overrides the derived category when set.
func collectRows(rows *goquery.Selection, roles []columnRole, source string, fixed models.Category) []models.RawQuote {
	var quotes []models.RawQuote
	if rows == nil {
		return quotes
	}
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row)
		if len(cells) < 3 {
			return
		}
		q, ok := rowQuote(cells, roles, source)
		if !ok {
			metrics.RowsSkipped.WithLabelValues(source).Inc()
			return
		}
		if fixed != "" {
			q.Category = fixed
		} else {
			q.Category = models.DeriveCategory(q.ChangePercent, q.Change)
		}
		metrics.RowsParsed.WithLabelValues(source).Inc()
		quotes = append(quotes, q)
	})
	return quotes
}

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
