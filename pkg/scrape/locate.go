package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The sources expose no stable machine-readable schema, so candidate rows
// are found by trying a list of locator strategies in order until one
// yields rows. Each strategy is independently testable against fixture HTML.

// locator finds candidate data rows in a parsed document.
type locator func(doc *goquery.Document) *goquery.Selection

// allTableRows selects the body rows of every table in the document.
func allTableRows(doc *goquery.Document) *goquery.Selection {
	return doc.Find("table").Find("tbody tr")
}

// selectorRows selects body rows inside a specific container selector.
func selectorRows(sel string) locator {
	return func(doc *goquery.Document) *goquery.Selection {
		return doc.Find(sel).Find("tbody tr, tr")
	}
}

// headingTableRows finds a heading whose text contains the given marker and
// selects the rows of the table that follows it, checking the heading's
// parent's next sibling first and the heading's own next sibling as a
// fallback. This is how the movers pages group gainer and loser tables.
func headingTableRows(marker string) locator {
	lower := strings.ToLower(marker)
	return func(doc *goquery.Document) *goquery.Selection {
		var rows *goquery.Selection
		doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
			if !strings.Contains(strings.ToLower(h.Text()), lower) {
				return true
			}
			table := h.Parent().Next().Find("table")
			if table.Length() == 0 {
				table = h.Next().Find("table")
			}
			if table.Length() == 0 {
				return true
			}
			rows = table.First().Find("tbody tr")
			if rows.Length() == 0 {
				if all := table.First().Find("tr"); all.Length() > 1 {
					rows = all.Slice(1, goquery.ToEnd) // skip the header row
				}
			}
			return false
		})
		return rows
	}
}

// locateRows tries each locator in order and returns the first non-empty
// row set, or nil when every strategy comes up empty.
func locateRows(doc *goquery.Document, locators ...locator) *goquery.Selection {
	for _, loc := range locators {
		rows := loc(doc)
		if rows != nil && rows.Length() > 0 {
			return rows
		}
	}
	return nil
}
