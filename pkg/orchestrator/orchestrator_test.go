package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moverscan/pkg/logger"
	"moverscan/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

// activeTime falls inside the current window (20:00 PKT).
var activeTime = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// idleTime falls outside every window (10:00 PKT).
var idleTime = time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	name   string
	window models.Window
	rows   []models.RawQuote
	err    error
	block  chan struct{} // when set, Scrape waits until closed
	calls  int
}

func (f *fakeAdapter) Name() string          { return f.name }
func (f *fakeAdapter) Window() models.Window { return f.window }
func (f *fakeAdapter) Scrape(ctx context.Context) ([]models.RawQuote, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	return f.rows, f.err
}

type fakeSink struct {
	mu      sync.Mutex
	upserts []upsert
	err     error
}

type upsert struct {
	window models.Window
	quotes []models.Quote
}

func (f *fakeSink) BulkUpsert(ctx context.Context, window models.Window, quotes []models.Quote) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.upserts = append(f.upserts, upsert{window: window, quotes: quotes})
	return len(quotes), nil
}

type fakeCache struct {
	batches int
	err     error
}

func (f *fakeCache) PublishBatch(ctx context.Context, window models.Window, quotes []models.Quote) error {
	f.batches++
	return f.err
}

func newTestOrchestrator(sink Sink, cache Publisher, at time.Time) *Orchestrator {
	o := New(sink, cache, 0)
	o.clock = func() time.Time { return at }
	return o
}

func TestRunCycleEndToEnd(t *testing.T) {
	sink := &fakeSink{}
	cache := &fakeCache{}
	o := newTestOrchestrator(sink, cache, activeTime)

	good := &fakeAdapter{name: "benzinga", window: models.WindowActive, rows: []models.RawQuote{
		{Symbol: "aaa", Name: "Alpha Inc", Price: 12.5, ChangePercent: 3.1, Source: "benzinga", Category: models.CategoryGainer},
	}}
	bad := &fakeAdapter{name: "investing", window: models.WindowActive, err: errors.New("blocked")}
	o.Register(good)
	o.Register(bad)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Window != models.WindowActive || res.Saved != 1 {
		t.Fatalf("result = %+v, want current window with 1 saved", res)
	}
	if len(sink.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(sink.upserts))
	}
	got := sink.upserts[0]
	if got.window != models.WindowActive || len(got.quotes) != 1 {
		t.Fatalf("upsert = %+v", got)
	}
	if got.quotes[0].Symbol != "AAA" {
		t.Errorf("symbol should be normalized, got %q", got.quotes[0].Symbol)
	}
	if cache.batches != 1 {
		t.Errorf("cache should receive one batch, got %d", cache.batches)
	}

	// A second cycle with fresher numbers updates, never duplicates.
	good.rows[0].ChangePercent = 5.7
	res, err = o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if res.Saved != 1 || len(sink.upserts) != 2 {
		t.Fatalf("second cycle should upsert again, res=%+v upserts=%d", res, len(sink.upserts))
	}
	if sink.upserts[1].quotes[0].ChangePercent != 5.7 {
		t.Errorf("second upsert should carry refreshed values")
	}
}

func TestRunCycleOutsideWindows(t *testing.T) {
	sink := &fakeSink{}
	o := newTestOrchestrator(sink, nil, idleTime)
	o.Register(&fakeAdapter{name: "benzinga", window: models.WindowActive})

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Window != models.WindowNone || res.Saved != 0 {
		t.Errorf("expected no-op result, got %+v", res)
	}
	if len(sink.upserts) != 0 {
		t.Errorf("sink must not be touched outside windows")
	}
}

func TestRunCycleRefusesOverlap(t *testing.T) {
	sink := &fakeSink{}
	o := newTestOrchestrator(sink, nil, activeTime)

	block := make(chan struct{})
	o.Register(&fakeAdapter{name: "slow", window: models.WindowActive, block: block})

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		o.RunCycle(context.Background())
		close(done)
	}()

	<-started
	for !o.InFlight() {
		time.Sleep(time.Millisecond)
	}

	if _, err := o.RunCycle(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("overlapping trigger should be refused, got %v", err)
	}

	close(block)
	<-done

	// With the first cycle finished the guard is released again.
	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Errorf("cycle after release should run, got %v", err)
	}
}

func TestRunCycleSkipsEmptyResult(t *testing.T) {
	sink := &fakeSink{}
	o := newTestOrchestrator(sink, nil, activeTime)
	o.Register(&fakeAdapter{name: "benzinga", window: models.WindowActive, rows: []models.RawQuote{
		{Symbol: "ZZZ", Name: "Zero Price", Price: 0, Source: "benzinga"},
	}})

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Saved != 0 || len(sink.upserts) != 0 {
		t.Errorf("all-invalid cycle must leave stores untouched, res=%+v", res)
	}
}

func TestRunCycleSinkErrorSurfaces(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	o := newTestOrchestrator(sink, nil, activeTime)
	o.Register(&fakeAdapter{name: "benzinga", window: models.WindowActive, rows: []models.RawQuote{
		{Symbol: "AAA", Name: "Alpha", Price: 1, Source: "benzinga"},
	}})

	if _, err := o.RunCycle(context.Background()); err == nil {
		t.Fatal("sink failure must fail the cycle")
	}
}

func TestRunCycleCacheFailureIsNonFatal(t *testing.T) {
	sink := &fakeSink{}
	cache := &fakeCache{err: errors.New("redis down")}
	o := newTestOrchestrator(sink, cache, activeTime)
	o.Register(&fakeAdapter{name: "benzinga", window: models.WindowActive, rows: []models.RawQuote{
		{Symbol: "AAA", Name: "Alpha", Price: 1, Source: "benzinga"},
	}})

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cache failure must not fail the cycle: %v", err)
	}
	if res.Saved != 1 {
		t.Errorf("quotes should still persist, got %+v", res)
	}
}
