package exchange

import (
	"strconv"

	"xrate-oracle/internal/asset"
)

// Gate.io candlesticks: rows of [time, volume, close, high, low, open, ...]
// with string cells.
var gateioSource = &Source{
	ID:               "gateio",
	Name:             "GateIo",
	URLTemplate:      "https://api.gateio.ws/api/v4/spot/candlesticks?currency_pair=BASE_ASSET_QUOTE_ASSET&interval=1m&from=START_TIME&to=END_TIME",
	MaxResponseBytes: OneKiB,
	QuoteUSDAsset:    asset.USDTAsset(),
	StablecoinPairs: []StablecoinPair{
		{Base: asset.DAI, Quote: asset.USDT},
	},
	extract: extractGateIo,
}

func extractGateIo(body []byte, tsMinute uint64) (uint64, uint64, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return 0, 0, err
	}
	candles := make([]candle, 0, len(rows))
	for _, row := range rows {
		tsStr, err := rowString(row, 0)
		if err != nil {
			return 0, 0, err
		}
		ts, err := strconv.ParseUint(tsStr, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		value, err := rowDecimalString(row, 5)
		if err != nil {
			return 0, 0, err
		}
		candles = append(candles, candle{ts: ts, value: value})
	}
	return extractCandles(candles, tsMinute)
}
