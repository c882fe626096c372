// Package forex is the catalog of central-bank data sources and the daily
// rate store backing every fiat leg. Each source returns a full set of
// currency rates for one UTC day, normalized to USD as the quote asset.
package forex

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

// ErrExtraction covers malformed payloads, missing fields, and responses
// for a different day than requested.
var ErrExtraction = errors.New("forex: extraction failed")

// OneKiB is the unit for per-source response caps.
const OneKiB uint64 = 1024

const placeholderDate = "DATE"

// RateMap holds one source's scaled rates against USD, keyed by symbol.
type RateMap map[string]uint64

// Source describes one forex data provider.
type Source struct {
	// ID is the stable identifier used in metrics and the collector.
	ID string
	// Name is the display name.
	Name string
	// URLTemplate carries the DATE placeholder, absent for feeds that only
	// serve the latest day.
	URLTemplate string
	// MaxResponseBytes caps the body accepted from this source.
	MaxResponseBytes uint64
	// UTCOffsetHours is the reference timezone of the source, consulted
	// when deciding whether its market day is over.
	UTCOffsetHours int

	formatDate func(dayStart uint64) string
	// queryOffsetDays shifts the date sent upstream; some banks expect the
	// day after the one being asked for.
	queryOffsetDays uint64
	extract         func(body []byte, dayStart uint64) (RateMap, error)
}

// URL renders the query URL for the day containing ts.
func (s *Source) URL(ts uint64) string {
	day := asset.DayStart(ts) + s.queryOffsetDays*asset.DaySeconds
	format := s.formatDate
	if format == nil {
		format = isoDate
	}
	return strings.ReplaceAll(s.URLTemplate, placeholderDate, format(day))
}

// ExtractRates parses the response body into the day's rate map. Feeds
// reporting a different day than requested fail extraction.
func (s *Source) ExtractRates(body []byte, ts uint64) (RateMap, error) {
	rates, err := s.extract(body, asset.DayStart(ts))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, s.ID, err)
	}
	return rates, nil
}

// OffsetToTimezone shifts a UTC timestamp into the source's local time.
func (s *Source) OffsetToTimezone(ts uint64) uint64 {
	return uint64(int64(ts) + int64(s.UTCOffsetHours)*int64(asset.HourSeconds))
}

// Sources returns the full catalog in fixed order.
func Sources() []*Source {
	return sources
}

var sources = []*Source{
	singaporeSource,
	myanmarSource,
	bosniaSource,
	israelSource,
	ecbSource,
	canadaSource,
	uzbekistanSource,
}

func isoDate(dayStart uint64) string {
	return time.Unix(int64(dayStart), 0).UTC().Format("2006-01-02")
}

func usDate(dayStart uint64) string {
	return time.Unix(int64(dayStart), 0).UTC().Format("01-02-2006")
}

// normalizeToUSD rebases a rate map onto USD using the map's own USD entry.
// Sources quote against their national currency; dividing by the USD rate
// moves every entry onto the common quote asset.
func normalizeToUSD(values RateMap) (RateMap, error) {
	usd, ok := values[asset.USD]
	if !ok || usd == 0 {
		return nil, errors.New("no USD rate in response")
	}
	unit := new(big.Int).SetUint64(rate.RateUnit)
	usdBig := new(big.Int).SetUint64(usd)
	out := make(RateMap, len(values))
	for symbol, value := range values {
		scaled := new(big.Int).SetUint64(value)
		scaled.Mul(scaled, unit)
		scaled.Div(scaled, usdBig)
		if !scaled.IsUint64() {
			continue
		}
		out[symbol] = scaled.Uint64()
	}
	return out, nil
}

// parseDay parses a date string in the given layout to a UTC day start.
func parseDay(layout, value string) (uint64, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return 0, err
	}
	return uint64(t.Unix()), nil
}
