// Package exchange is the static catalog of cryptocurrency sources: one
// descriptor per exchange with its URL template, payload shape, and
// normalization rules. Adding a source means registering a descriptor and
// an extractor; nothing else changes.
package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

// ErrExtraction covers every way a response can fail to yield a usable
// sample: malformed payload, missing fields, numeric overflow, or no candle
// at or before the requested minute.
var ErrExtraction = errors.New("exchange: extraction failed")

// OneKiB is the unit for per-source response caps.
const OneKiB uint64 = 1024

// URL template placeholders.
const (
	placeholderBase  = "BASE_ASSET"
	placeholderQuote = "QUOTE_ASSET"
	placeholderStart = "START_TIME"
	placeholderEnd   = "END_TIME"
)

// StablecoinPair declares one stablecoin market a source serves, in the
// source's own (base, quote) order.
type StablecoinPair struct {
	Base  string
	Quote string
}

// Source describes one cryptocurrency exchange.
type Source struct {
	// ID is the stable identifier used in samples and metrics.
	ID string
	// Name is the display name.
	Name string
	// URLTemplate carries the BASE_ASSET/QUOTE_ASSET/START_TIME/END_TIME
	// placeholders substituted by URL.
	URLTemplate string
	// MaxResponseBytes caps the body accepted from this source.
	MaxResponseBytes uint64
	// QuoteUSDAsset is the USD-like asset this exchange quotes directly.
	QuoteUSDAsset asset.Asset
	// StablecoinPairs lists the stablecoin markets usable by the bridge.
	StablecoinPairs []StablecoinPair

	formatStart func(ts uint64) string
	formatEnd   func(ts uint64) string
	extract     func(body []byte, tsMinute uint64) (uint64, uint64, error)
}

// URL renders the query URL for the given symbols at the given timestamp.
// The timestamp is minute-aligned before formatting.
func (s *Source) URL(baseSymbol, quoteSymbol string, ts uint64) string {
	minute := asset.MinuteStart(ts)
	start, end := strconv.FormatUint(minute, 10), strconv.FormatUint(minute, 10)
	if s.formatStart != nil {
		start = s.formatStart(minute)
	}
	if s.formatEnd != nil {
		end = s.formatEnd(minute)
	}
	r := strings.NewReplacer(
		placeholderBase, strings.ToUpper(baseSymbol),
		placeholderQuote, strings.ToUpper(quoteSymbol),
		placeholderStart, start,
		placeholderEnd, end,
	)
	return r.Replace(s.URLTemplate)
}

// ExtractSample parses the response body and returns the sample for the
// candle closest to, but not after, the requested minute.
func (s *Source) ExtractSample(body []byte, tsMinute uint64) (rate.Sample, error) {
	value, sampleTS, err := s.extract(body, tsMinute)
	if err != nil {
		return rate.Sample{}, fmt.Errorf("%w: %s: %v", ErrExtraction, s.ID, err)
	}
	return rate.Sample{
		SourceID: s.ID,
		Value:    value,
		Decimals: rate.Decimals,
		TsMinute: asset.MinuteStart(sampleTS),
	}, nil
}

// StablecoinPairFor returns the market this source serves for the given
// stablecoin symbol, if any.
func (s *Source) StablecoinPairFor(symbol string) (StablecoinPair, bool) {
	for _, p := range s.StablecoinPairs {
		if p.Base == symbol || p.Quote == symbol {
			return p, true
		}
	}
	return StablecoinPair{}, false
}

// Sources returns the full catalog in fixed order.
func Sources() []*Source {
	return sources
}

var sources = []*Source{
	binanceSource,
	coinbaseSource,
	kucoinSource,
	okxSource,
	gateioSource,
	mexcSource,
}

// candle is one decoded kline row plus the second-resolution timestamp it
// describes.
type candle struct {
	ts    uint64
	value decimal.Decimal
}

// extractCandles provides the shared selection logic: among candles at or
// before the requested minute, pick the most recent, and scale its value to
// nine decimals with half-up rounding.
func extractCandles(candles []candle, tsMinute uint64) (uint64, uint64, error) {
	var best *candle
	for i := range candles {
		c := &candles[i]
		if c.ts > tsMinute {
			continue
		}
		if best == nil || c.ts > best.ts {
			best = c
		}
	}
	if best == nil {
		return 0, 0, errors.New("no candle at or before requested minute")
	}
	scaled := best.value.Mul(decimal.NewFromUint64(rate.RateUnit)).Round(0)
	if scaled.Sign() < 0 {
		return 0, 0, errors.New("negative rate")
	}
	if !scaled.BigInt().IsUint64() {
		return 0, 0, errors.New("scaled rate overflows 64 bits")
	}
	return scaled.BigInt().Uint64(), best.ts, nil
}

// decodeRows decodes a JSON array of heterogeneous rows, preserving number
// precision.
func decodeRows(body []byte) ([][]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// rowString reads a string cell.
func rowString(row []any, idx int) (string, error) {
	if idx >= len(row) {
		return "", fmt.Errorf("row has %d cells, want index %d", len(row), idx)
	}
	s, ok := row[idx].(string)
	if !ok {
		return "", fmt.Errorf("cell %d is not a string", idx)
	}
	return s, nil
}

// rowNumber reads a numeric cell as a decimal.
func rowNumber(row []any, idx int) (decimal.Decimal, error) {
	if idx >= len(row) {
		return decimal.Decimal{}, fmt.Errorf("row has %d cells, want index %d", len(row), idx)
	}
	n, ok := row[idx].(json.Number)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("cell %d is not a number", idx)
	}
	return decimal.NewFromString(n.String())
}

// rowDecimalString reads a numeric string cell as a decimal.
func rowDecimalString(row []any, idx int) (decimal.Decimal, error) {
	s, err := rowString(row, idx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}
