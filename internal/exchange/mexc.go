package exchange

import (
	"bytes"
	"encoding/json"

	"xrate-oracle/internal/asset"
)

// MEXC klines: {"code":..., "data": [[time, open, close, high, low, volume,
// amount], ...]} with a numeric time and string prices.
var mexcSource = &Source{
	ID:               "mexc",
	Name:             "Mexc",
	URLTemplate:      "https://www.mexc.com/open/api/v2/market/kline?symbol=BASE_ASSET_QUOTE_ASSET&interval=1m&start_time=START_TIME&limit=1",
	MaxResponseBytes: OneKiB,
	QuoteUSDAsset:    asset.USDTAsset(),
	StablecoinPairs: []StablecoinPair{
		{Base: asset.DAI, Quote: asset.USDT},
		{Base: asset.USDC, Quote: asset.USDT},
	},
	extract: extractMexc,
}

func extractMexc(body []byte, tsMinute uint64) (uint64, uint64, error) {
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
		ts, err := rowNumber(row, 0)
		if err != nil {
			return 0, 0, err
		}
		open, err := rowDecimalString(row, 1)
		if err != nil {
			return 0, 0, err
		}
		candles = append(candles, candle{ts: uint64(ts.IntPart()), value: open})
	}
	return extractCandles(candles, tsMinute)
}
