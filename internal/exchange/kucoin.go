package exchange

import (
	"bytes"
	"encoding/json"
	"strconv"

	"xrate-oracle/internal/asset"
)

// KuCoin candles: {"code":..., "data": [[time, open, close, high, low,
// volume, turnover], ...]} with every cell a string.
var kucoinSource = &Source{
	ID:               "kucoin",
	Name:             "KuCoin",
	URLTemplate:      "https://api.kucoin.com/api/v1/market/candles?symbol=BASE_ASSET-QUOTE_ASSET&type=1min&startAt=START_TIME&endAt=END_TIME",
	MaxResponseBytes: 2 * OneKiB,
	QuoteUSDAsset:    asset.USDTAsset(),
	StablecoinPairs: []StablecoinPair{
		{Base: asset.USDC, Quote: asset.USDT},
		{Base: asset.USDT, Quote: asset.DAI},
	},
	// The end second must be included explicitly.
	formatEnd: func(ts uint64) string { return strconv.FormatUint(ts+1, 10) },
	extract:   extractKuCoin,
}

func extractKuCoin(body []byte, tsMinute uint64) (uint64, uint64, error) {
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
		tsStr, err := rowString(row, 0)
		if err != nil {
			return 0, 0, err
		}
		ts, err := strconv.ParseUint(tsStr, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		open, err := rowDecimalString(row, 1)
		if err != nil {
			return 0, 0, err
		}
		candles = append(candles, candle{ts: ts, value: open})
	}
	return extractCandles(candles, tsMinute)
}
