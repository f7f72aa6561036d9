package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"moverscan/pkg/validation"
)

// Window is one of the three disjoint daily trading periods we scrape, or
// WindowNone outside of them.
type Window string

const (
	WindowNone   Window = ""
	WindowPre    Window = "premarket"
	WindowActive Window = "current"
	WindowAfter  Window = "aftermarket"
)

func (w Window) String() string {
	if w == WindowNone {
		return "none"
	}
	return string(w)
}

// Windows lists the three scrapeable windows in daily order.
func Windows() []Window {
	return []Window{WindowPre, WindowActive, WindowAfter}
}

// Category tags a quote as a gainer, loser, or neither.
type Category string

const (
	CategoryGainer  Category = "gainer"
	CategoryLoser   Category = "loser"
	CategoryNeutral Category = "neutral"
)

// DeriveCategory classifies by sign of percent change; a zero percent change
// falls back to the sign of the absolute change, then neutral.
func DeriveCategory(changePercent, change float64) Category {
	switch {
	case changePercent > 0:
		return CategoryGainer
	case changePercent < 0:
		return CategoryLoser
	case change > 0:
		return CategoryGainer
	case change < 0:
		return CategoryLoser
	default:
		return CategoryNeutral
	}
}

// Volume holds a trading volume either as a plain share count or, when the
// source printed compact K/M notation, as the verbatim compact string. The
// compact form is never expanded; downstream consumers handle both.
type Volume struct {
	Count   int64
	Compact string
}

// IsZero reports whether no volume was observed at all.
func (v Volume) IsZero() bool { return v.Count == 0 && v.Compact == "" }

// String renders the volume the way it will be persisted.
func (v Volume) String() string {
	if v.Compact != "" {
		return v.Compact
	}
	return fmt.Sprintf("%d", v.Count)
}

// MarshalJSON emits the compact string as a JSON string and the plain count
// as a JSON number, mirroring the mixed shape readers already consume.
func (v Volume) MarshalJSON() ([]byte, error) {
	if v.Compact != "" {
		return json.Marshal(v.Compact)
	}
	return json.Marshal(v.Count)
}

func (v *Volume) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Volume{Count: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("volume must be a number or string: %w", err)
	}
	*v = VolumeFromString(s)
	return nil
}

// VolumeFromString parses a persisted volume value back into a Volume.
func VolumeFromString(s string) Volume {
	s = strings.TrimSpace(s)
	if s == "" {
		return Volume{}
	}
	if strings.ContainsAny(s, "KM") {
		return Volume{Compact: s}
	}
	var n int64
	fmt.Sscanf(s, "%d", &n)
	return Volume{Count: n}
}

// RawQuote is an unvalidated quote extracted directly from one source's
// markup. It lives for a single scrape cycle.
type RawQuote struct {
	Symbol        string
	Name          string
	Price         float64
	Change        float64
	ChangePercent float64
	Volume        Volume
	Source        string
	Category      Category  // empty when the source does not supply one
	ObservedAt    time.Time // zero when the source carries no timestamp
}

// Quote is the merged, normalized record persisted per (symbol, source)
// within one window store.
type Quote struct {
	Symbol        string    `json:"symbol" validate:"required,symbol"`
	Name          string    `json:"name" validate:"required"`
	Price         float64   `json:"price" validate:"required,price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        Volume    `json:"volume"`
	Source        string    `json:"source" validate:"required,source"`
	Category      Category  `json:"category"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Validate checks the canonical invariants via struct tags.
func (q Quote) Validate() error {
	if errors := validation.ValidateStruct(q); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize trims identifiers and fills defaulted fields in place.
func (q *Quote) Sanitize() {
	q.Symbol = strings.ToUpper(validation.SanitizeString(q.Symbol))
	q.Name = validation.SanitizeString(q.Name)
	if q.Source == "" {
		q.Source = "unknown"
	}
	if q.Category == "" {
		q.Category = CategoryNeutral
	}
	if q.LastUpdated.IsZero() {
		q.LastUpdated = time.Now()
	}
}

// ToJSON renders the quote for pub/sub consumers.
func (q Quote) ToJSON() (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("json marshal error: %w", err)
	}
	return string(data), nil
}
