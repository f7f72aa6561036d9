package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"moverscan/pkg/models"
)

// columnRole tags what a table column holds.
type columnRole int

const (
	colIgnore columnRole = iota
	colSymbol
	colName
	colPrice
	colChange
	colPercent
	colVolume
	// colPercentOrVolume marks the ambiguous fifth positional column; the
	// cell's own text decides (K/M notation means volume, otherwise percent).
	colPercentOrVolume
)

// positionalRoles is the fallback layout when headers are absent or
// unmatchable: symbol, name, price, change, percent-or-volume, volume.
var positionalRoles = []columnRole{colSymbol, colName, colPrice, colChange, colPercentOrVolume, colVolume}

// tableHeaders extracts lower-cased header texts from thead, falling back to
// the table's first row.
func tableHeaders(table *goquery.Selection) []string {
	var headers []string
	table.Find("thead tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, strings.ToLower(strings.TrimSpace(cell.Text())))
	})
	if len(headers) == 0 {
		table.Find("tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, strings.ToLower(strings.TrimSpace(cell.Text())))
		})
	}
	return headers
}

// classifyColumns assigns a role per column from header text. A column whose
// header contains "change" but not "%" is the absolute change; one containing
// "%" is the percent change. Unrecognized headers keep the positional role
// for their index when one exists.
func classifyColumns(headers []string) []columnRole {
	if len(headers) == 0 {
		return positionalRoles
	}
	matched := false
	roles := make([]columnRole, len(headers))
	for i, h := range headers {
		switch {
		case strings.Contains(h, "ticker") || strings.Contains(h, "symbol"):
			roles[i] = colSymbol
		case strings.Contains(h, "company") || strings.Contains(h, "name"):
			roles[i] = colName
		case strings.Contains(h, "price") || strings.Contains(h, "close") || strings.Contains(h, "last"):
			roles[i] = colPrice
		case strings.Contains(h, "%") || strings.Contains(h, "percent"):
			roles[i] = colPercent
		case strings.Contains(h, "change") || strings.Contains(h, "chg"):
			roles[i] = colChange
		case strings.Contains(h, "vol"):
			roles[i] = colVolume
		default:
			roles[i] = colIgnore
			continue
		}
		matched = true
	}
	if !matched {
		return positionalRoles
	}
	return roles
}

// rowQuote assembles a RawQuote from one row's cells under the given roles.
// ok is false when the row lacks a symbol, a name, or a positive price.
func rowQuote(cells []string, roles []columnRole, source string) (models.RawQuote, bool) {
	q := models.RawQuote{Source: source}
	for i, text := range cells {
		if i >= len(roles) {
			break
		}
		switch roles[i] {
		case colSymbol:
			q.Symbol = strings.ToUpper(strings.TrimSpace(text))
		case colName:
			q.Name = strings.TrimSpace(text)
		case colPrice:
			q.Price = parseNumber(text)
		case colChange:
			q.Change = parseNumber(text)
		case colPercent:
			if looksCompact(text) {
				// Some layouts shift volume into the percent slot.
				q.Volume = parseVolume(text)
			} else {
				q.ChangePercent = parseNumber(text)
			}
		case colVolume:
			q.Volume = parseVolume(text)
		case colPercentOrVolume:
			if looksCompact(text) {
				q.Volume = parseVolume(text)
			} else {
				q.ChangePercent = parseNumber(text)
			}
		}
	}
	if q.Symbol == "" || q.Name == "" || q.Price <= 0 {
		return models.RawQuote{}, false
	}
	return q, true
}

// cellTexts collects the text of each td in a row.
func cellTexts(row *goquery.Selection) []string {
	var cells []string
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, cell.Text())
	})
	return cells
}
