package rate

import (
	"math"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/asset"
)

// RateUnit is the scaling factor of every rate the engine handles: rates are
// unsigned integers carrying nine decimals.
const RateUnit uint64 = 1_000_000_000

// Decimals is the number of decimals encoded in RateUnit.
const Decimals uint32 = 9

// InconsistencyThresholdPct is the maximum accepted spread of a sample set,
// as a percentage of the median. Sets of at least MinSamplesForConsistency
// samples whose (max - min) exceeds this fraction of the median are rejected.
const (
	InconsistencyThresholdPct = 10
	MinSamplesForConsistency  = 3
)

var (
	decRateUnit   = decimal.NewFromUint64(RateUnit)
	decMaxUint64  = decimal.NewFromUint64(math.MaxUint64)
	decInvertUnit = decRateUnit.Mul(decRateUnit) // 10^18
)

// Sample is one normalized observation from a single upstream source.
// Value/10^Decimals is the real-valued price at TsMinute.
type Sample struct {
	SourceID string
	Value    uint64
	Decimals uint32
	TsMinute uint64
}

// Queried carries the full sample vector collected for a pair, before the
// final rate is derived. Cross-pair conversions operate on the vectors so
// spread information survives the composition.
type Queried struct {
	BaseAsset  asset.Asset
	QuoteAsset asset.Asset
	Timestamp  uint64
	Rates      []uint64

	BaseQueried   int
	BaseReceived  int
	QuoteQueried  int
	QuoteReceived int

	// ForexTimestamp is the start of the forex day consulted for a fiat
	// leg, zero when no fiat leg was involved.
	ForexTimestamp uint64
}

// NewQueried builds a Queried for one fetched leg. The sample values become
// the rate vector and the counts land on the base leg; duplicates from the
// same source are collapsed, keeping the most recent sample.
func NewQueried(base, quote asset.Asset, ts uint64, samples []Sample, queried int) Queried {
	latest := make(map[string]Sample, len(samples))
	for _, s := range samples {
		if prev, ok := latest[s.SourceID]; !ok || s.TsMinute > prev.TsMinute {
			latest[s.SourceID] = s
		}
	}
	rates := make([]uint64, 0, len(latest))
	for _, s := range samples {
		if kept, ok := latest[s.SourceID]; ok && kept == s {
			rates = append(rates, s.Value)
			delete(latest, s.SourceID)
		}
	}
	return Queried{
		BaseAsset:    base,
		QuoteAsset:   quote,
		Timestamp:    ts,
		Rates:        rates,
		BaseQueried:  queried,
		BaseReceived: len(rates),
	}
}

// Multiply composes q with other, yielding q.Base priced in other.Quote.
// Meaningful when q.Quote equals other.Base. The rate vectors are
// cross-multiplied so every pairing of upstream observations survives.
// The multiplied counts accumulate on the base leg: the conversion is part
// of establishing the base asset's price.
func (q Queried) Multiply(other Queried) Queried {
	rates := make([]uint64, 0, len(q.Rates)*len(other.Rates))
	for _, a := range q.Rates {
		da := decimal.NewFromUint64(a)
		for _, b := range other.Rates {
			product := da.Mul(decimal.NewFromUint64(b)).Div(decRateUnit).Round(0)
			rates = append(rates, clampUint64(product))
		}
	}
	return Queried{
		BaseAsset:      q.BaseAsset,
		QuoteAsset:     other.QuoteAsset,
		Timestamp:      q.Timestamp,
		Rates:          rates,
		BaseQueried:    q.BaseQueried + other.BaseQueried + other.QuoteQueried,
		BaseReceived:   q.BaseReceived + other.BaseReceived + other.QuoteReceived,
		QuoteQueried:   q.QuoteQueried,
		QuoteReceived:  q.QuoteReceived,
		ForexTimestamp: firstNonZero(q.ForexTimestamp, other.ForexTimestamp),
	}
}

// Divide composes q with other, yielding q.Base priced in other.Base.
// Meaningful when both share the same quote asset. The divisor's counts
// become the quote leg of the result.
func (q Queried) Divide(other Queried) Queried {
	rates := make([]uint64, 0, len(q.Rates)*len(other.Rates))
	for _, a := range q.Rates {
		da := decimal.NewFromUint64(a).Mul(decRateUnit)
		for _, b := range other.Rates {
			if b == 0 {
				continue
			}
			quotient := da.Div(decimal.NewFromUint64(b)).Round(0)
			rates = append(rates, clampUint64(quotient))
		}
	}
	return Queried{
		BaseAsset:      q.BaseAsset,
		QuoteAsset:     other.BaseAsset,
		Timestamp:      q.Timestamp,
		Rates:          rates,
		BaseQueried:    q.BaseQueried,
		BaseReceived:   q.BaseReceived,
		QuoteQueried:   other.BaseQueried + other.QuoteQueried,
		QuoteReceived:  other.BaseReceived + other.QuoteReceived,
		ForexTimestamp: firstNonZero(q.ForexTimestamp, other.ForexTimestamp),
	}
}

// Inverted swaps base and quote and inverts every rate. Zero rates cannot be
// inverted and are dropped.
func (q Queried) Inverted() Queried {
	rates := make([]uint64, 0, len(q.Rates))
	for _, r := range q.Rates {
		if r == 0 {
			continue
		}
		rates = append(rates, clampUint64(decInvertUnit.Div(decimal.NewFromUint64(r)).Round(0)))
	}
	return Queried{
		BaseAsset:      q.QuoteAsset,
		QuoteAsset:     q.BaseAsset,
		Timestamp:      q.Timestamp,
		Rates:          rates,
		BaseQueried:    q.QuoteQueried,
		BaseReceived:   q.QuoteReceived,
		QuoteQueried:   q.BaseQueried,
		QuoteReceived:  q.BaseReceived,
		ForexTimestamp: q.ForexTimestamp,
	}
}

// Validate rejects sample sets whose spread betrays inconsistent upstream
// data: at least MinSamplesForConsistency samples with (max - min) above
// InconsistencyThresholdPct percent of the median. Smaller sets pass and are
// reported with reduced confidence through the metadata counts.
func (q Queried) Validate() (Queried, error) {
	if len(q.Rates) >= MinSamplesForConsistency {
		min, max := q.Rates[0], q.Rates[0]
		for _, r := range q.Rates[1:] {
			if r < min {
				min = r
			}
			if r > max {
				max = r
			}
		}
		median := Median(q.Rates)
		spread := decimal.NewFromUint64(max - min).Mul(decimal.NewFromInt(100))
		limit := decimal.NewFromUint64(median).Mul(decimal.NewFromInt(InconsistencyThresholdPct))
		if spread.GreaterThan(limit) {
			return Queried{}, ErrInconsistentRatesReceived
		}
	}
	return q, nil
}

// ExchangeRate is the wire-level output entity: a single scaled rate plus
// provenance metadata.
type ExchangeRate struct {
	BaseAsset  asset.Asset `json:"base_asset"`
	QuoteAsset asset.Asset `json:"quote_asset"`
	Timestamp  uint64      `json:"timestamp"`
	Rate       uint64      `json:"rate"`
	Metadata   Metadata    `json:"metadata"`
}

// Metadata gives background on how an exchange rate was determined.
type Metadata struct {
	Decimals                    uint32  `json:"decimals"`
	BaseAssetNumQueriedSources  int     `json:"base_asset_num_queried_sources"`
	BaseAssetNumReceivedRates   int     `json:"base_asset_num_received_rates"`
	QuoteAssetNumQueriedSources int     `json:"quote_asset_num_queried_sources"`
	QuoteAssetNumReceivedRates  int     `json:"quote_asset_num_received_rates"`
	StandardDeviation           uint64  `json:"standard_deviation"`
	ForexTimestamp              *uint64 `json:"forex_timestamp,omitempty"`
}

// ExchangeRate derives the final output entity: the arithmetic mean of the
// sample vector with its standard deviation, both scaled by RateUnit.
// Fails with an overflow error when the mean no longer fits in 64 bits.
func (q Queried) ExchangeRate() (ExchangeRate, error) {
	sum := decimal.Zero
	for _, r := range q.Rates {
		sum = sum.Add(decimal.NewFromUint64(r))
	}
	var mean decimal.Decimal
	if len(q.Rates) > 0 {
		mean = sum.DivRound(decimal.NewFromInt(int64(len(q.Rates))), 0)
	}
	if mean.GreaterThan(decMaxUint64) {
		return ExchangeRate{}, OverflowError()
	}

	out := ExchangeRate{
		BaseAsset:  q.BaseAsset,
		QuoteAsset: q.QuoteAsset,
		Timestamp:  q.Timestamp,
		Rate:       clampUint64(mean),
		Metadata: Metadata{
			Decimals:                    Decimals,
			BaseAssetNumQueriedSources:  q.BaseQueried,
			BaseAssetNumReceivedRates:   q.BaseReceived,
			QuoteAssetNumQueriedSources: q.QuoteQueried,
			QuoteAssetNumReceivedRates:  q.QuoteReceived,
			StandardDeviation:           StandardDeviation(q.Rates),
		},
	}
	if q.ForexTimestamp != 0 {
		ts := q.ForexTimestamp
		out.Metadata.ForexTimestamp = &ts
	}
	return out, nil
}

func firstNonZero(a, b uint64) uint64 {
	if a != 0 {
		return a
	}
	return b
}
