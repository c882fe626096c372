// Package stablecoin converts USDT, the dominant crypto quote currency,
// into USD. It looks at several USD-pegged coins priced against USDT and
// takes the median, so no single depegged coin can drag the conversion.
package stablecoin

import (
	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

// MinRates is the number of independent stablecoin rates needed to decide
// whether any one of them is off its peg.
const MinRates = 2

// USDRate derives the USDT -> USD conversion from the given per-stablecoin
// rates. Every input must be priced in the same quote asset (USDT); the
// median coin's full sample vector is inverted into "USD per USDT" so
// spread information survives.
func USDRate(stablecoinRates []rate.Queried) (rate.Queried, error) {
	if len(stablecoinRates) == 0 {
		return rate.Queried{}, rate.ErrStablecoinRateNotFound
	}
	if len(stablecoinRates) < MinRates {
		return rate.Queried{}, rate.ErrStablecoinRateTooFewRates
	}

	quote := stablecoinRates[0].QuoteAsset
	for _, r := range stablecoinRates[1:] {
		if r.QuoteAsset != quote {
			return rate.Queried{}, rate.ErrStablecoinRateNotFound
		}
	}

	medians := make([]uint64, len(stablecoinRates))
	for i, r := range stablecoinRates {
		medians[i] = rate.Median(r.Rates)
	}
	medianOfMedians := rate.Median(medians)
	if medianOfMedians == 0 {
		return rate.Queried{}, rate.ErrStablecoinRateZeroRate
	}

	var chosen rate.Queried
	for i, m := range medians {
		if m == medianOfMedians {
			chosen = stablecoinRates[i]
			break
		}
	}

	timestamps := make([]uint64, len(stablecoinRates))
	for i, r := range stablecoinRates {
		timestamps[i] = r.Timestamp
	}
	medianTimestamp := asset.MinuteStart(rate.Median(timestamps))

	// The chosen coin tracks USD, so its S/USDT rate doubles as USD/USDT;
	// inverting yields USDT/USD.
	pegged := rate.Queried{
		BaseAsset:     asset.USDAsset(),
		QuoteAsset:    quote,
		Timestamp:     medianTimestamp,
		Rates:         chosen.Rates,
		BaseQueried:   chosen.BaseQueried,
		BaseReceived:  chosen.BaseReceived,
		QuoteQueried:  chosen.QuoteQueried,
		QuoteReceived: chosen.QuoteReceived,
	}
	return pegged.Inverted(), nil
}
