package exchange

import (
	"bytes"
	"encoding/json"
	"strconv"

	"xrate-oracle/internal/asset"
)

// OKX history candles: {"code":..., "data": [[tsMs, open, high, low, close,
// ...], ...]} with string cells. Counterintuitively, "after" bounds the end
// time and "before" the start time.
var okxSource = &Source{
	ID:               "okx",
	Name:             "Okx",
	URLTemplate:      "https://www.okx.com/api/v5/market/history-candles?instId=BASE_ASSET-QUOTE_ASSET&bar=1m&before=START_TIME&after=END_TIME",
	MaxResponseBytes: 2 * OneKiB,
	QuoteUSDAsset:    asset.USDTAsset(),
	StablecoinPairs: []StablecoinPair{
		{Base: asset.DAI, Quote: asset.USDT},
		{Base: asset.USDC, Quote: asset.USDT},
	},
	// OKX does not return the current minute, so the start bound retreats a
	// full minute plus one millisecond. Past timestamps stay valid because
	// the most recent candle is always first.
	formatStart: func(ts uint64) string { return strconv.FormatUint(ts*1000-60_001, 10) },
	formatEnd:   func(ts uint64) string { return strconv.FormatUint(ts*1000+1, 10) },
	extract:     extractOkx,
}

func extractOkx(body []byte, tsMinute uint64) (uint64, uint64, error) {
	var envelope struct {
		Data [][]any `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return 0, 0, err
	}
	candles := make([]candle, 0, len(envelope.Data))
	for _, row := range envelope.Data {
		msStr, err := rowString(row, 0)
		if err != nil {
			return 0, 0, err
		}
		ms, err := strconv.ParseUint(msStr, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		open, err := rowDecimalString(row, 1)
		if err != nil {
			return 0, 0, err
		}
		candles = append(candles, candle{ts: ms / 1000, value: open})
	}
	return extractCandles(candles, tsMinute)
}
