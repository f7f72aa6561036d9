package merge

import (
	"testing"
	"time"

	"moverscan/pkg/logger"
	"moverscan/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

func TestReconcileFreshnessWins(t *testing.T) {
	t1 := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)

	a := []models.RawQuote{{Symbol: "AAA", Name: "Alpha", Price: 10, Source: "benzinga", ObservedAt: t1}}
	b := []models.RawQuote{{Symbol: "AAA", Name: "Alpha", Price: 8, Source: "investing", ObservedAt: t2}}

	merged := Reconcile(a, b)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged quote, got %d", len(merged))
	}
	got := merged[0]
	if got.Price != 8 || got.Source != "investing" {
		t.Errorf("newer observation should replace despite lower price, got price=%v source=%s", got.Price, got.Source)
	}
	if !got.ObservedAt.Equal(t2) {
		t.Errorf("ObservedAt = %v, want %v", got.ObservedAt, t2)
	}
}

func TestReconcileHigherPriceWins(t *testing.T) {
	ts := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	a := []models.RawQuote{{Symbol: "BBB", Name: "Beta", Price: 5, Source: "benzinga", ObservedAt: ts}}
	b := []models.RawQuote{{Symbol: "BBB", Name: "Beta", Price: 9, Source: "investing", ObservedAt: ts}}

	merged := Reconcile(a, b)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged quote, got %d", len(merged))
	}
	if merged[0].Price != 9 || merged[0].Source != "investing" {
		t.Errorf("strictly higher price should replace, got price=%v source=%s", merged[0].Price, merged[0].Source)
	}
}

func TestReconcileBackfill(t *testing.T) {
	ts := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	stored := []models.RawQuote{{Symbol: "CCC", Name: "Gamma", Price: 10, Change: 0, Source: "benzinga", ObservedAt: ts}}
	loser := []models.RawQuote{{Symbol: "CCC", Name: "Gamma", Price: 0, Change: 1.5, ChangePercent: 2.1,
		Volume: models.Volume{Compact: "1.2M"}, Source: "investing", ObservedAt: ts.Add(-time.Minute)}}

	merged := Reconcile(stored, loser)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged quote, got %d", len(merged))
	}
	got := merged[0]
	if got.Price != 10 {
		t.Errorf("stored price must survive backfill, got %v", got.Price)
	}
	if got.Change != 1.5 || got.ChangePercent != 2.1 {
		t.Errorf("zero fields should be backfilled, got change=%v percent=%v", got.Change, got.ChangePercent)
	}
	if got.Volume.String() != "1.2M" {
		t.Errorf("missing volume should be backfilled, got %q", got.Volume)
	}
	if got.Source != "benzinga" {
		t.Errorf("backfill must not change source, got %s", got.Source)
	}
	if !got.ObservedAt.Equal(ts) {
		t.Errorf("backfill must not change timestamp, got %v", got.ObservedAt)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ts := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	batch := []models.RawQuote{
		{Symbol: "DDD", Name: "Delta", Price: 3.25, Source: "benzinga", ObservedAt: ts},
		{Symbol: "eee", Name: "Epsilon", Price: 7, Source: "benzinga", ObservedAt: ts},
	}

	merged := Reconcile(batch, batch)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged quotes, got %d", len(merged))
	}
	if merged[0].Symbol != "DDD" || merged[1].Symbol != "EEE" {
		t.Errorf("expected sorted uppercased symbols, got %s %s", merged[0].Symbol, merged[1].Symbol)
	}
	if merged[0].Price != 3.25 || merged[1].Price != 7 {
		t.Errorf("duplicate merge must not alter values")
	}
}

func TestReconcileDefaultsMissingTimestamp(t *testing.T) {
	before := time.Now()
	merged := Reconcile([]models.RawQuote{{Symbol: "FFF", Name: "Zeta", Price: 1, Source: "benzinga"}})
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged quote, got %d", len(merged))
	}
	if merged[0].ObservedAt.Before(before) {
		t.Errorf("missing timestamp should default to reconcile time, got %v", merged[0].ObservedAt)
	}
}

func TestReconcileSkipsEmptySymbols(t *testing.T) {
	merged := Reconcile([]models.RawQuote{
		{Symbol: "  ", Name: "Blank", Price: 2, Source: "benzinga"},
		{Symbol: "GGG", Name: "Good", Price: 2, Source: "benzinga"},
	})
	if len(merged) != 1 || merged[0].Symbol != "GGG" {
		t.Fatalf("blank symbols must be dropped, got %+v", merged)
	}
}

func TestFilterAndNormalize(t *testing.T) {
	ts := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	in := []models.RawQuote{
		{Symbol: "  abc ", Name: "Rejected", Price: 0, Source: "benzinga", ObservedAt: ts},
		{Symbol: "abc", Name: " Acme Corp ", Price: 12.50, ChangePercent: 4.2, Source: "benzinga", Category: models.CategoryGainer, ObservedAt: ts},
		{Symbol: "HHH", Name: "", Price: 9, Source: "benzinga", ObservedAt: ts},
		{Symbol: "III", Name: "No Source", Price: 9, ObservedAt: ts},
	}

	out := FilterAndNormalize(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 canonical quote, got %d", len(out))
	}
	got := out[0]
	if got.Symbol != "ABC" {
		t.Errorf("symbol should be uppercased, got %q", got.Symbol)
	}
	if got.Name != "Acme Corp" {
		t.Errorf("name should be trimmed, got %q", got.Name)
	}
	if got.Price != 12.50 || got.Category != models.CategoryGainer {
		t.Errorf("fields should carry through, got %+v", got)
	}
	if !got.LastUpdated.Equal(ts) {
		t.Errorf("LastUpdated should carry the observation time, got %v", got.LastUpdated)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("canonical quote should validate, got %v", err)
	}
}

func TestFilterDefaultsCategory(t *testing.T) {
	out := FilterAndNormalize([]models.RawQuote{
		{Symbol: "JJJ", Name: "Jay", Price: 1, Source: "investing"},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(out))
	}
	if out[0].Category != models.CategoryNeutral {
		t.Errorf("missing category should default to neutral, got %s", out[0].Category)
	}
	if out[0].LastUpdated.IsZero() {
		t.Errorf("missing timestamp should be defaulted")
	}
}
