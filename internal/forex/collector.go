package forex

import (
	"sync"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

// MaxCollectionDays bounds how many days the collector tracks at once.
const MaxCollectionDays = 2

// oneDayCollector accumulates per-source rate maps for a single day.
type oneDayCollector struct {
	day     uint64
	rates   map[string][]uint64
	sources map[string]struct{}
}

func newOneDayCollector(day uint64) *oneDayCollector {
	return &oneDayCollector{
		day:     day,
		rates:   make(map[string][]uint64),
		sources: make(map[string]struct{}),
	}
}

func (c *oneDayCollector) update(sourceID string, rates RateMap) {
	if _, seen := c.sources[sourceID]; seen {
		return
	}
	c.sources[sourceID] = struct{}{}
	for symbol, value := range rates {
		if value == 0 {
			continue
		}
		c.rates[symbol] = append(c.rates[symbol], value)
	}
}

func (c *oneDayCollector) ratesMap() map[string]rate.Queried {
	out := make(map[string]rate.Queried, len(c.rates))
	queried := len(c.sources)
	for symbol, values := range c.rates {
		out[symbol] = rate.Queried{
			BaseAsset:      asset.Asset{Symbol: symbol, Class: asset.Fiat},
			QuoteAsset:     asset.USDAsset(),
			Timestamp:      c.day,
			Rates:          []uint64{rate.Median(values)},
			BaseQueried:    queried,
			BaseReceived:   len(values),
			ForexTimestamp: c.day,
		}
	}
	return out
}

// Collector gathers the per-source responses of a refresh cycle before they
// are committed to the store. It keeps the most recent MaxCollectionDays
// days; updating an older day is refused.
type Collector struct {
	mu   sync.Mutex
	days []*oneDayCollector
}

// NewCollector constructs an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Update records one source's rates for the day containing ts. It reports
// whether the update was accepted.
func (c *Collector) Update(sourceID string, ts uint64, rates RateMap) bool {
	day := asset.DayStart(ts)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, dc := range c.days {
		if dc.day == day {
			dc.update(sourceID, rates)
			return true
		}
	}
	// New days must move forward.
	for _, dc := range c.days {
		if day < dc.day {
			return false
		}
	}
	dc := newOneDayCollector(day)
	dc.update(sourceID, rates)
	c.days = append(c.days, dc)
	if len(c.days) > MaxCollectionDays {
		c.days = c.days[len(c.days)-MaxCollectionDays:]
	}
	return true
}

// RatesMap returns the aggregated per-symbol entries for the day containing
// ts, or false when the day is not being collected.
func (c *Collector) RatesMap(ts uint64) (map[string]rate.Queried, bool) {
	day := asset.DayStart(ts)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dc := range c.days {
		if dc.day == day {
			return dc.ratesMap(), true
		}
	}
	return nil, false
}

// Sources lists which sources have reported for the day containing ts.
func (c *Collector) Sources(ts uint64) []string {
	day := asset.DayStart(ts)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dc := range c.days {
		if dc.day == day {
			out := make([]string, 0, len(dc.sources))
			for id := range dc.sources {
				out = append(out, id)
			}
			return out
		}
	}
	return nil
}
