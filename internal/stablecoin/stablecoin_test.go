package stablecoin

import (
	"errors"
	"testing"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

func coinRate(symbol string, values []uint64) rate.Queried {
	return rate.Queried{
		BaseAsset:    asset.Asset{Symbol: symbol, Class: asset.Crypto},
		QuoteAsset:   asset.USDTAsset(),
		Timestamp:    1_650_000_000,
		Rates:        values,
		BaseQueried:  len(values),
		BaseReceived: len(values),
	}
}

func TestUSDRateNoInputs(t *testing.T) {
	if _, err := USDRate(nil); !errors.Is(err, rate.ErrStablecoinRateNotFound) {
		t.Fatalf("expected StablecoinRateNotFound, got %v", err)
	}
}

func TestUSDRateTooFewRates(t *testing.T) {
	rates := []rate.Queried{coinRate(asset.DAI, []uint64{rate.RateUnit})}
	if _, err := USDRate(rates); !errors.Is(err, rate.ErrStablecoinRateTooFewRates) {
		t.Fatalf("expected StablecoinRateTooFewRates, got %v", err)
	}
}

func TestUSDRateMismatchedQuotes(t *testing.T) {
	mismatched := coinRate(asset.USDC, []uint64{rate.RateUnit})
	mismatched.QuoteAsset = asset.Asset{Symbol: asset.DAI, Class: asset.Crypto}
	rates := []rate.Queried{coinRate(asset.DAI, []uint64{rate.RateUnit}), mismatched}
	if _, err := USDRate(rates); !errors.Is(err, rate.ErrStablecoinRateNotFound) {
		t.Fatalf("expected StablecoinRateNotFound, got %v", err)
	}
}

func TestUSDRateZeroMedian(t *testing.T) {
	rates := []rate.Queried{
		coinRate(asset.DAI, []uint64{0}),
		coinRate(asset.USDC, []uint64{0}),
	}
	if _, err := USDRate(rates); !errors.Is(err, rate.ErrStablecoinRateZeroRate) {
		t.Fatalf("expected StablecoinRateZeroRate, got %v", err)
	}
}

func TestUSDRateHoldsAtPeg(t *testing.T) {
	rates := []rate.Queried{
		coinRate(asset.DAI, []uint64{rate.RateUnit}),
		coinRate(asset.USDC, []uint64{rate.RateUnit}),
	}
	out, err := USDRate(rates)
	if err != nil {
		t.Fatalf("bridge failed: %v", err)
	}
	if out.BaseAsset != asset.USDTAsset() || out.QuoteAsset != asset.USDAsset() {
		t.Fatalf("expected USDT/USD, got %s/%s", out.BaseAsset.Symbol, out.QuoteAsset.Symbol)
	}
	if rate.Median(out.Rates) != rate.RateUnit {
		t.Fatalf("pegged bridge should be 1e9, got %d", rate.Median(out.Rates))
	}
}

func TestUSDRateDepeggedQuote(t *testing.T) {
	// USDT itself trades below the peg: every coin is worth more USDT.
	rates := []rate.Queried{
		coinRate(asset.DAI, []uint64{1_250_000_000}),
		coinRate(asset.USDC, []uint64{1_250_000_000}),
	}
	out, err := USDRate(rates)
	if err != nil {
		t.Fatalf("bridge failed: %v", err)
	}
	if got := rate.Median(out.Rates); got != 800_000_000 {
		t.Fatalf("expected inverted 0.8e9, got %d", got)
	}
}

func TestUSDRatePicksMedianCoin(t *testing.T) {
	rates := []rate.Queried{
		coinRate(asset.DAI, []uint64{900_000_000}),
		coinRate(asset.USDC, []uint64{rate.RateUnit}),
		coinRate("TUSD", []uint64{1_100_000_000}),
	}
	out, err := USDRate(rates)
	if err != nil {
		t.Fatalf("bridge failed: %v", err)
	}
	if got := rate.Median(out.Rates); got != rate.RateUnit {
		t.Fatalf("the median coin should carry the bridge, got %d", got)
	}
}
