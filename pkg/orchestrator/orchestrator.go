// Package orchestrator drives one scrape cycle end to end: classify the
// current trading window, run that window's adapters in order, reconcile and
// normalize their output, persist it, and mirror it into the cache.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"moverscan/pkg/logger"
	"moverscan/pkg/marketwindow"
	"moverscan/pkg/merge"
	"moverscan/pkg/metrics"
	"moverscan/pkg/models"
	"moverscan/pkg/scrape"
)

// ErrCycleInFlight is returned when a trigger lands while the previous cycle
// is still running. The late trigger is refused, never queued.
var ErrCycleInFlight = errors.New("scrape cycle already in flight")

// Sink persists one window's normalized quotes.
type Sink interface {
	BulkUpsert(ctx context.Context, window models.Window, quotes []models.Quote) (int, error)
}

// Publisher mirrors persisted quotes into a cache layer.
type Publisher interface {
	PublishBatch(ctx context.Context, window models.Window, quotes []models.Quote) error
}

// CycleResult summarizes one completed cycle for callers such as the admin
// trigger endpoint.
type CycleResult struct {
	Window models.Window `json:"window"`
	Saved  int           `json:"saved"`
}

type Orchestrator struct {
	adapters map[models.Window][]scrape.Adapter
	sink     Sink
	cache    Publisher
	pacing   time.Duration

	clock    func() time.Time
	inFlight int32
}

// New builds an orchestrator. cache may be nil; cache failures never fail a
// cycle either way. pacing is the delay inserted between adapters of the same
// cycle to stay polite toward the sources.
func New(sink Sink, cache Publisher, pacing time.Duration) *Orchestrator {
	return &Orchestrator{
		adapters: make(map[models.Window][]scrape.Adapter),
		sink:     sink,
		cache:    cache,
		pacing:   pacing,
		clock:    time.Now,
	}
}

// Register adds an adapter under the window it reports.
func (o *Orchestrator) Register(a scrape.Adapter) {
	w := a.Window()
	o.adapters[w] = append(o.adapters[w], a)
}

// InFlight reports whether a cycle is currently running.
func (o *Orchestrator) InFlight() bool {
	return atomic.LoadInt32(&o.inFlight) == 1
}

// RunCycle executes one full scrape cycle for the window active at call
// time. Outside every window it returns immediately with WindowNone. At most
// one cycle runs at a time; overlapping triggers get ErrCycleInFlight.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	if !atomic.CompareAndSwapInt32(&o.inFlight, 0, 1) {
		metrics.CyclesSkipped.Inc()
		logger.Log.Warn("cycle trigger refused, previous cycle still running")
		return CycleResult{}, ErrCycleInFlight
	}
	defer atomic.StoreInt32(&o.inFlight, 0)

	window := marketwindow.ClassifyAt(o.clock())
	metrics.CyclesRun.WithLabelValues(window.String()).Inc()
	if window == models.WindowNone {
		logger.Log.Info("outside trading windows, nothing to scrape")
		return CycleResult{Window: models.WindowNone}, nil
	}

	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues(string(window)).Observe(time.Since(start).Seconds())
	}()

	logger.Log.Info("scrape cycle started",
		zap.String("window", string(window)),
		zap.Int("adapters", len(o.adapters[window])))

	batches := o.collect(ctx, window)

	merged := merge.Reconcile(batches...)
	quotes := merge.FilterAndNormalize(merged)
	if len(quotes) == 0 {
		logger.Log.Warn("cycle produced no valid quotes, stores left untouched",
			zap.String("window", string(window)))
		return CycleResult{Window: window}, nil
	}

	saved, err := o.sink.BulkUpsert(ctx, window, quotes)
	if err != nil {
		return CycleResult{Window: window}, err
	}

	if o.cache != nil {
		if err := o.cache.PublishBatch(ctx, window, quotes); err != nil {
			logger.Log.Warn("cache publish incomplete", zap.Error(err))
		}
	}

	logger.Log.Info("scrape cycle finished",
		zap.String("window", string(window)),
		zap.Int("saved", saved),
		zap.Duration("took", time.Since(start)))
	return CycleResult{Window: window, Saved: saved}, nil
}

// collect runs each of the window's adapters in registration order, pacing
// between them. A failing adapter contributes nothing; the others proceed.
func (o *Orchestrator) collect(ctx context.Context, window models.Window) [][]models.RawQuote {
	var batches [][]models.RawQuote
	for i, a := range o.adapters[window] {
		if i > 0 && o.pacing > 0 {
			select {
			case <-ctx.Done():
				return batches
			case <-time.After(o.pacing):
			}
		}

		rows, err := a.Scrape(ctx)
		if err != nil {
			metrics.AdapterFailures.WithLabelValues(a.Name(), string(window)).Inc()
			logger.Log.Error("adapter failed",
				zap.String("source", a.Name()),
				zap.String("window", string(window)),
				zap.Error(err))
			continue
		}
		logger.Log.Info("adapter finished",
			zap.String("source", a.Name()),
			zap.Int("rows", len(rows)))
		batches = append(batches, rows)
	}
	return batches
}
