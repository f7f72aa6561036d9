package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"moverscan/pkg/models"
)

var (
	numericJunk = regexp.MustCompile(`[^0-9+\-.]`)
	digitJunk   = regexp.MustCompile(`[^0-9]`)
)

// parseNumber strips everything but digits, sign, and decimal point before
// converting. Unparseable input yields zero.
func parseNumber(s string) float64 {
	cleaned := numericJunk.ReplaceAllString(s, "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseVolume keeps compact K/M notation verbatim and parses anything else
// as a plain share count.
func parseVolume(s string) models.Volume {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Volume{}
	}
	if strings.Contains(s, "K") || strings.Contains(s, "M") {
		return models.Volume{Compact: s}
	}
	cleaned := digitJunk.ReplaceAllString(s, "")
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return models.Volume{}
	}
	return models.Volume{Count: n}
}

// looksCompact reports whether a cell carries K/M volume notation. Used to
// disambiguate the percent-or-volume column.
func looksCompact(s string) bool {
	return strings.Contains(s, "K") || strings.Contains(s, "M")
}
