package exchange

import "xrate-oracle/internal/asset"

// Coinbase candles: rows of [time, low, high, open, close, volume] with
// numeric cells. Coinbase is the one catalog entry quoting USD directly.
var coinbaseSource = &Source{
	ID:               "coinbase",
	Name:             "Coinbase",
	URLTemplate:      "https://api.pro.coinbase.com/products/BASE_ASSET-QUOTE_ASSET/candles?granularity=60&start=START_TIME&end=END_TIME",
	MaxResponseBytes: OneKiB,
	QuoteUSDAsset:    asset.USDAsset(),
	StablecoinPairs: []StablecoinPair{
		{Base: asset.USDT, Quote: asset.USDC},
	},
	extract: extractCoinbase,
}

func extractCoinbase(body []byte, tsMinute uint64) (uint64, uint64, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return 0, 0, err
	}
	candles := make([]candle, 0, len(rows))
	for _, row := range rows {
		ts, err := rowNumber(row, 0)
		if err != nil {
			return 0, 0, err
		}
		open, err := rowNumber(row, 3)
		if err != nil {
			return 0, 0, err
		}
		candles = append(candles, candle{ts: uint64(ts.IntPart()), value: open})
	}
	return extractCandles(candles, tsMinute)
}
