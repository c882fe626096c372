// Package periodic holds the scheduled routines: the daily forex refresh
// and rate-cache pruning, both driven by the scheduler's ticks.
package periodic

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/forex"
	"xrate-oracle/internal/metrics"
	"xrate-oracle/internal/outcall"
)

// RefreshIntervalSeconds spaces forex refresh runs. Sources publish once a
// day; refreshing every six hours picks up late publishers.
const RefreshIntervalSeconds = 6 * 60 * 60

// CachePruner evicts expired rate-cache entries.
type CachePruner interface {
	PruneCaches(nowSecs uint64)
}

// Tasks owns the background routine state.
type Tasks struct {
	driver    *outcall.Driver
	sources   []*forex.Source
	store     *forex.Store
	collector *forex.Collector
	pruner    CachePruner
	logger    zerolog.Logger

	mu         sync.Mutex
	refreshing bool
	nextRunAt  uint64
}

// NewTasks wires the background routines.
func NewTasks(driver *outcall.Driver, store *forex.Store, pruner CachePruner, logger zerolog.Logger) *Tasks {
	return &Tasks{
		driver:    driver,
		sources:   forex.Sources(),
		store:     store,
		collector: forex.NewCollector(),
		pruner:    pruner,
		logger:    logger.With().Str("component", "periodic").Logger(),
	}
}

// Run executes whatever is due at the given tick.
func (t *Tasks) Run(ctx context.Context, nowSecs uint64) {
	if t.pruner != nil {
		t.pruner.PruneCaches(nowSecs)
	}
	t.RefreshForex(ctx, nowSecs)
}

// RefreshForex queries every forex source for the current day and commits
// the per-symbol aggregates. Overlapping runs and runs before the next
// scheduled time are skipped.
func (t *Tasks) RefreshForex(ctx context.Context, nowSecs uint64) {
	t.mu.Lock()
	if t.refreshing || (t.nextRunAt > 0 && nowSecs < t.nextRunAt) {
		t.mu.Unlock()
		return
	}
	t.refreshing = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.refreshing = false
		t.mu.Unlock()
	}()

	day := asset.DayStart(nowSecs)
	succeeded := t.fetchSources(ctx, day)

	if succeeded == 0 {
		metrics.ForexRefreshTotal.WithLabelValues("empty").Inc()
		t.logger.Warn().Uint64("day", day).Msg("no forex source delivered rates")
	} else {
		if rates, ok := t.collector.RatesMap(day); ok {
			t.store.Put(day, rates)
		}
		metrics.ForexRefreshTotal.WithLabelValues("ok").Inc()
		t.logger.Info().Uint64("day", day).Int("sources", succeeded).Msg("forex store refreshed")
	}

	t.mu.Lock()
	t.nextRunAt = nowSecs - nowSecs%RefreshIntervalSeconds + RefreshIntervalSeconds
	t.mu.Unlock()
}

// fetchSources queries every source for the given day concurrently and
// feeds the collector. It returns how many sources delivered usable rates.
func (t *Tasks) fetchSources(ctx context.Context, day uint64) int {
	type result struct {
		sourceID string
		rates    forex.RateMap
		err      error
	}
	results := make(chan result, len(t.sources))

	var wg sync.WaitGroup
	for _, src := range t.sources {
		wg.Add(1)
		go func(src *forex.Source) {
			defer wg.Done()
			body, err := t.driver.Fetch(ctx, outcall.Request{
				SourceID: src.ID,
				URL:      src.URL(day),
				MaxBytes: src.MaxResponseBytes,
			})
			if err != nil {
				metrics.OutcallsTotal.WithLabelValues(src.ID, "http_error").Inc()
				results <- result{sourceID: src.ID, err: err}
				return
			}
			rates, err := src.ExtractRates(body, day)
			if err != nil {
				metrics.OutcallsTotal.WithLabelValues(src.ID, "extract_error").Inc()
				results <- result{sourceID: src.ID, err: err}
				return
			}
			metrics.OutcallsTotal.WithLabelValues(src.ID, "ok").Inc()
			results <- result{sourceID: src.ID, rates: rates}
		}(src)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for r := range results {
		if r.err != nil {
			t.logger.Debug().Err(r.err).Str("source", r.sourceID).Msg("forex source skipped")
			continue
		}
		if t.collector.Update(r.sourceID, day, r.rates) {
			succeeded++
		}
	}
	return succeeded
}
