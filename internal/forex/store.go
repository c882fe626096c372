package forex

import (
	"sync"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

// MaxDaysBack bounds the weekend/holiday retreat: a request for a day
// without data is served from up to this many prior days.
const MaxDaysBack uint64 = 4

// aoeShiftSeconds moves a UTC timestamp to the anywhere-on-earth timezone
// (UTC-12), used to decide whether a day is over everywhere.
const aoeShiftSeconds int64 = -12 * 60 * 60

// StoreOptions tune the daily rate store.
type StoreOptions struct {
	// DisableRetreat turns off the prior-day fallback. Used in tests that
	// pin exact-day behavior.
	DisableRetreat bool
}

// Store maps (day, fiat symbol) to the symbol's rate against USD. Entries
// live until overwritten by a later refresh; the store is rebuilt from
// upstream after a restart.
type Store struct {
	mu    sync.RWMutex
	rates map[uint64]map[string]rate.Queried
	opts  StoreOptions
}

// NewStore constructs an empty Store.
func NewStore(opts StoreOptions) *Store {
	return &Store{rates: make(map[uint64]map[string]rate.Queried), opts: opts}
}

// Get resolves base/quote for the day containing requestedTS. Requests for
// the current day retreat to the previous one until the day is over
// anywhere on Earth; missing days retreat up to MaxDaysBack prior days
// unless disabled.
func (s *Store) Get(requestedTS, currentTS uint64, baseSymbol, quoteSymbol string) (rate.Queried, error) {
	day := asset.DayStart(requestedTS)

	yesterday := asset.DayStart(uint64(int64(currentTS) + aoeShiftSeconds))
	if day > asset.DaySeconds && day == yesterday {
		day -= asset.DaySeconds
	}

	if baseSymbol == quoteSymbol {
		a := asset.Asset{Symbol: baseSymbol, Class: asset.Fiat}
		return rate.Queried{
			BaseAsset:      a,
			QuoteAsset:     a,
			Timestamp:      day,
			Rates:          []uint64{rate.RateUnit},
			ForexTimestamp: day,
		}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	maxBack := MaxDaysBack
	if s.opts.DisableRetreat {
		maxBack = 0
	}
	for back := uint64(0); back <= maxBack; back++ {
		if back*asset.DaySeconds > day {
			break
		}
		lookup := day - back*asset.DaySeconds
		dayRates, ok := s.rates[lookup]
		if !ok {
			continue
		}
		base, haveBase := dayRates[baseSymbol]
		quote, haveQuote := dayRates[quoteSymbol]

		switch {
		case haveBase && haveQuote:
			return base.Divide(quote), nil
		case haveBase:
			if quoteSymbol == asset.USD {
				return base, nil
			}
			return rate.Queried{}, rate.ErrForexQuoteAssetNotFound
		case haveQuote:
			return rate.Queried{}, rate.ErrForexBaseAssetNotFound
		default:
			if quoteSymbol == asset.USD {
				return rate.Queried{}, rate.ErrForexBaseAssetNotFound
			}
			return rate.Queried{}, rate.ErrForexAssetsNotFound
		}
	}
	return rate.Queried{}, rate.ErrForexInvalidTimestamp
}

// Put commits a day's rates. Existing symbols are only replaced by entries
// backed by more sources; USD is never stored, being the implicit quote.
func (s *Store) Put(ts uint64, rates map[string]rate.Queried) {
	day := asset.DayStart(ts)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rates[day]
	if !ok {
		existing = make(map[string]rate.Queried, len(rates))
		s.rates[day] = existing
	}
	for symbol, entry := range rates {
		if symbol == asset.USD {
			continue
		}
		if prev, ok := existing[symbol]; ok && prev.BaseReceived >= entry.BaseReceived {
			continue
		}
		existing[symbol] = entry
	}
}

// Prune drops days older than the retention window, keeping the store sized
// by (days retained x symbols).
func (s *Store) Prune(currentTS uint64, retainDays uint64) {
	if retainDays == 0 {
		return
	}
	cutoff := asset.DayStart(currentTS)
	if retained := retainDays * asset.DaySeconds; cutoff > retained {
		cutoff -= retained
	} else {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for day := range s.rates {
		if day < cutoff {
			delete(s.rates, day)
		}
	}
}

// Days reports which days currently have rates, for observability.
func (s *Store) Days() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days := make([]uint64, 0, len(s.rates))
	for day := range s.rates {
		days = append(days, day)
	}
	return days
}
