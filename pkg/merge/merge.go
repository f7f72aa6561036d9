// Package merge reconciles per-source quote batches into one record per
// symbol and normalizes the survivors for persistence. The merge is a
// greedy, single-pass, order-sensitive fold: it favors freshness and the
// higher price over statistical consensus, accepting that a late erroneous
// quote can override an earlier correct one.
package merge

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"moverscan/pkg/logger"
	"moverscan/pkg/metrics"
	"moverscan/pkg/models"
)

// Reconcile collapses the given batches (one per source, in registration
// order) into one RawQuote per distinct uppercased symbol. Output is sorted
// by symbol for deterministic downstream handling.
func Reconcile(batches ...[]models.RawQuote) []models.RawQuote {
	now := time.Now()
	bySymbol := make(map[string]models.RawQuote)
	total := 0

	for _, batch := range batches {
		total += len(batch)
		for _, q := range batch {
			symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
			if symbol == "" {
				continue
			}
			q.Symbol = symbol

			stored, seen := bySymbol[symbol]
			if !seen {
				if q.ObservedAt.IsZero() {
					q.ObservedAt = now
				}
				bySymbol[symbol] = q
				continue
			}

			newTime := q.ObservedAt
			if newTime.IsZero() {
				newTime = now
			}

			// A new observation wins on a strictly higher price, a strictly
			// newer timestamp, or by carrying a timestamp the stored entry
			// lacks. The winner overwrites every field including the source.
			wins := q.Price > stored.Price ||
				newTime.After(stored.ObservedAt) ||
				(stored.ObservedAt.IsZero() && !q.ObservedAt.IsZero())
			if wins {
				q.ObservedAt = newTime
				bySymbol[symbol] = q
				continue
			}

			// Losing observations still backfill fields the stored entry is
			// missing, without touching its source or timestamp.
			if stored.Price == 0 && q.Price != 0 {
				stored.Price = q.Price
			}
			if stored.Change == 0 && q.Change != 0 {
				stored.Change = q.Change
			}
			if stored.ChangePercent == 0 && q.ChangePercent != 0 {
				stored.ChangePercent = q.ChangePercent
			}
			if stored.Volume.IsZero() && !q.Volume.IsZero() {
				stored.Volume = q.Volume
			}
			bySymbol[symbol] = stored
		}
	}

	merged := make([]models.RawQuote, 0, len(bySymbol))
	for _, q := range bySymbol {
		merged = append(merged, q)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Symbol < merged[j].Symbol })

	metrics.MergedQuotes.Add(float64(len(merged)))
	logger.Log.Info("merged quotes",
		zap.Int("input", total), zap.Int("unique", len(merged)))
	return merged
}

// FilterAndNormalize validates each merged quote and coerces the survivors
// into canonical form. The validity check runs against the pre-normalized
// record: trimmed symbol and name non-empty, positive price, source present.
// Rejections are dropped silently; they are data noise, not errors.
func FilterAndNormalize(quotes []models.RawQuote) []models.Quote {
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if !valid(q) {
			metrics.ValidationRejects.Inc()
			continue
		}
		out = append(out, normalize(q))
	}
	return out
}

func valid(q models.RawQuote) bool {
	if strings.TrimSpace(q.Symbol) == "" {
		return false
	}
	if strings.TrimSpace(q.Name) == "" {
		return false
	}
	if q.Price <= 0 {
		return false
	}
	if q.Source == "" {
		return false
	}
	return true
}

func normalize(q models.RawQuote) models.Quote {
	c := models.Quote{
		Symbol:        q.Symbol,
		Name:          q.Name,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Source:        q.Source,
		Category:      q.Category,
		LastUpdated:   q.ObservedAt,
	}
	c.Sanitize()
	return c
}
