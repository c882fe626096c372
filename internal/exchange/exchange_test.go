package exchange

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"xrate-oracle/internal/asset"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return body
}

func sourceByID(t *testing.T, id string) *Source {
	t.Helper()
	for _, s := range Sources() {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("source %q not in catalog", id)
	return nil
}

// The fixture minute used across the extraction tests.
const fixtureMinute = uint64(1_650_000_000)

func TestCatalogOrderIsStable(t *testing.T) {
	want := []string{"binance", "coinbase", "kucoin", "okx", "gateio", "mexc"}
	got := Sources()
	if len(got) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestURLRendering(t *testing.T) {
	// 1661524016 aligns down to 1661523960.
	ts := uint64(1_661_524_016)
	cases := map[string]string{
		"binance":  "https://api.binance.com/api/v3/klines?symbol=BTCICP&interval=1m&startTime=1661523960000&endTime=1661523960000",
		"coinbase": "https://api.pro.coinbase.com/products/BTC-ICP/candles?granularity=60&start=1661523960&end=1661523960",
		"kucoin":   "https://api.kucoin.com/api/v1/market/candles?symbol=BTC-ICP&type=1min&startAt=1661523960&endAt=1661523961",
		"okx":      "https://www.okx.com/api/v5/market/history-candles?instId=BTC-ICP&bar=1m&before=1661523899999&after=1661523960001",
		"gateio":   "https://api.gateio.ws/api/v4/spot/candlesticks?currency_pair=BTC_ICP&interval=1m&from=1661523960&to=1661523960",
		"mexc":     "https://www.mexc.com/open/api/v2/market/kline?symbol=BTC_ICP&interval=1m&start_time=1661523960&limit=1",
	}
	for id, want := range cases {
		if got := sourceByID(t, id).URL("btc", "icp", ts); got != want {
			t.Errorf("%s: unexpected URL\n got %s\nwant %s", id, got, want)
		}
	}
}

func TestExtractSampleFromFixtures(t *testing.T) {
	cases := map[string]uint64{
		"binance":  41_960_000_000,
		"coinbase": 49_180_000_000,
		"kucoin":   345_426_000_000,
		"okx":      41_960_000_000,
		"gateio":   42_600_000_000,
		"mexc":     46_101_000_000,
	}
	for id, want := range cases {
		src := sourceByID(t, id)
		sample, err := src.ExtractSample(loadFixture(t, id+".json"), fixtureMinute)
		if err != nil {
			t.Errorf("%s: extraction failed: %v", id, err)
			continue
		}
		if sample.Value != want {
			t.Errorf("%s: expected %d, got %d", id, want, sample.Value)
		}
		if sample.TsMinute != fixtureMinute {
			t.Errorf("%s: expected minute %d, got %d", id, fixtureMinute, sample.TsMinute)
		}
		if sample.SourceID != id {
			t.Errorf("%s: sample should carry the source id, got %q", id, sample.SourceID)
		}
	}
}

func TestExtractSampleRejectsFutureCandle(t *testing.T) {
	src := sourceByID(t, "binance")
	// The only candle starts one minute after the requested minute.
	if _, err := src.ExtractSample(loadFixture(t, "binance.json"), fixtureMinute-60); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractSamplePicksClosestPriorCandle(t *testing.T) {
	body := []byte(`[[1649999880000,"41.10","0","0","0","0",0,"0",0,"0","0","0"],
		[1649999940000,"41.50","0","0","0","0",0,"0",0,"0","0","0"]]`)
	sample, err := sourceByID(t, "binance").ExtractSample(body, fixtureMinute)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if sample.Value != 41_500_000_000 {
		t.Fatalf("expected most recent prior candle, got %d", sample.Value)
	}
	if sample.TsMinute != 1_649_999_940 {
		t.Fatalf("expected candle minute, got %d", sample.TsMinute)
	}
}

func TestExtractSampleRejectsMalformedPayloads(t *testing.T) {
	for _, id := range []string{"binance", "coinbase", "kucoin", "okx", "gateio", "mexc"} {
		src := sourceByID(t, id)
		for _, body := range []string{"", "not json", `{"data": "nope"}`, `[[true]]`} {
			if _, err := src.ExtractSample([]byte(body), fixtureMinute); !errors.Is(err, ErrExtraction) {
				t.Errorf("%s: payload %q should fail extraction, got %v", id, body, err)
			}
		}
	}
}

func TestExtractSampleRejectsOverflow(t *testing.T) {
	body := []byte(`[[1650000000000,"99999999999999999999","0","0","0","0",0,"0",0,"0","0","0"]]`)
	if _, err := sourceByID(t, "binance").ExtractSample(body, fixtureMinute); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected overflow to fail extraction, got %v", err)
	}
}

func TestHalfUpRounding(t *testing.T) {
	// 0.0000000015 scales to 1.5 nanounits and rounds up to 2.
	body := []byte(`[[1650000000000,"0.0000000015","0","0","0","0",0,"0",0,"0","0","0"]]`)
	sample, err := sourceByID(t, "binance").ExtractSample(body, fixtureMinute)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if sample.Value != 2 {
		t.Fatalf("expected half-up rounding to 2, got %d", sample.Value)
	}
}

func TestMaxResponseBytes(t *testing.T) {
	cases := map[string]uint64{
		"binance":  OneKiB,
		"coinbase": OneKiB,
		"kucoin":   2 * OneKiB,
		"okx":      2 * OneKiB,
		"gateio":   OneKiB,
		"mexc":     OneKiB,
	}
	for id, want := range cases {
		if got := sourceByID(t, id).MaxResponseBytes; got != want {
			t.Errorf("%s: expected %d, got %d", id, want, got)
		}
	}
}

func TestStablecoinPairLookup(t *testing.T) {
	coinbase := sourceByID(t, "coinbase")
	pair, ok := coinbase.StablecoinPairFor(asset.USDC)
	if !ok {
		t.Fatal("coinbase should serve a USDC market")
	}
	if pair.Base != asset.USDT || pair.Quote != asset.USDC {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if _, ok := coinbase.StablecoinPairFor(asset.DAI); ok {
		t.Fatal("coinbase has no DAI market")
	}
}

func TestQuoteUSDAsset(t *testing.T) {
	if got := sourceByID(t, "coinbase").QuoteUSDAsset; got != asset.USDAsset() {
		t.Fatalf("coinbase quotes USD, got %+v", got)
	}
	if got := sourceByID(t, "binance").QuoteUSDAsset; got != asset.USDTAsset() {
		t.Fatalf("binance quotes USDT, got %+v", got)
	}
}
