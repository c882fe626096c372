package asset

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	a, err := Normalize(Asset{Symbol: " btc\t", Class: Crypto})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if a.Symbol != "BTC" {
		t.Fatalf("expected BTC, got %q", a.Symbol)
	}
	if a.Class != Crypto {
		t.Fatalf("class should be preserved")
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	if _, err := Normalize(Asset{Symbol: "   "}); !errors.Is(err, ErrEmptySymbol) {
		t.Fatalf("expected ErrEmptySymbol, got %v", err)
	}
}

func TestNormalizeRejectsTooLong(t *testing.T) {
	long := make([]byte, MaxSymbolLength+1)
	for i := range long {
		long[i] = 'A'
	}
	if _, err := Normalize(Asset{Symbol: string(long)}); !errors.Is(err, ErrSymbolTooLong) {
		t.Fatalf("expected ErrSymbolTooLong, got %v", err)
	}
}

func TestNormalizeRejectsControlCharacters(t *testing.T) {
	if _, err := Normalize(Asset{Symbol: "BT\x00C"}); !errors.Is(err, ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestMinuteStart(t *testing.T) {
	if got := MinuteStart(1_650_000_042); got != 1_650_000_000 {
		t.Fatalf("expected 1650000000, got %d", got)
	}
	if got := MinuteStart(1_650_000_000); got != 1_650_000_000 {
		t.Fatalf("aligned timestamp should be unchanged, got %d", got)
	}
}

func TestDayStart(t *testing.T) {
	// 2022-04-15 05:20:00 UTC -> 2022-04-15 00:00:00 UTC.
	if got := DayStart(1_650_000_000); got != 1_649_980_800 {
		t.Fatalf("expected 1649980800, got %d", got)
	}
}

func TestPairKeyAndInverted(t *testing.T) {
	p := Pair{Base: Asset{Symbol: "BTC", Class: Crypto}, Quote: Asset{Symbol: "EUR", Class: Fiat}}
	if p.Key() != "BTC/EUR" {
		t.Fatalf("unexpected key %q", p.Key())
	}
	if p.Inverted().Key() != "EUR/BTC" {
		t.Fatalf("unexpected inverted key %q", p.Inverted().Key())
	}
}
