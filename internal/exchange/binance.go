package exchange

import (
	"strconv"

	"xrate-oracle/internal/asset"
)

// Binance klines: rows of [openTimeMs, open, high, low, close, volume, ...]
// with prices as strings.
var binanceSource = &Source{
	ID:               "binance",
	Name:             "Binance",
	URLTemplate:      "https://api.binance.com/api/v3/klines?symbol=BASE_ASSETQUOTE_ASSET&interval=1m&startTime=START_TIME&endTime=END_TIME",
	MaxResponseBytes: OneKiB,
	QuoteUSDAsset:    asset.USDTAsset(),
	StablecoinPairs: []StablecoinPair{
		{Base: asset.DAI, Quote: asset.USDT},
		{Base: asset.USDC, Quote: asset.USDT},
	},
	formatStart: millisecondTimestamp,
	formatEnd:   millisecondTimestamp,
	extract:     extractBinance,
}

func millisecondTimestamp(ts uint64) string {
	return strconv.FormatUint(ts*1000, 10)
}

func extractBinance(body []byte, tsMinute uint64) (uint64, uint64, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return 0, 0, err
	}
	candles := make([]candle, 0, len(rows))
	for _, row := range rows {
		ms, err := rowNumber(row, 0)
		if err != nil {
			return 0, 0, err
		}
		open, err := rowDecimalString(row, 1)
		if err != nil {
			return 0, 0, err
		}
		candles = append(candles, candle{ts: uint64(ms.IntPart()) / 1000, value: open})
	}
	return extractCandles(candles, tsMinute)
}
