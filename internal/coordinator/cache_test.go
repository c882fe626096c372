package coordinator

import (
	"testing"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/rate"
)

func cacheEntryFor(symbol string, minute uint64) rate.Queried {
	return rate.Queried{
		BaseAsset:    asset.Asset{Symbol: symbol, Class: asset.Crypto},
		QuoteAsset:   asset.USDTAsset(),
		Timestamp:    minute,
		Rates:        []uint64{rate.RateUnit},
		BaseQueried:  3,
		BaseReceived: 3,
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(4)
	c.Put(cacheEntryFor("BTC", testMinute))

	got, ok := c.Get("BTC", testMinute)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.BaseAsset.Symbol != "BTC" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if _, ok := c.Get("BTC", testMinute+60); ok {
		t.Fatal("different minute must miss")
	}
	if _, ok := c.Get("ETH", testMinute); ok {
		t.Fatal("different symbol must miss")
	}
}

func TestMemoryCacheEvictsLeastRecent(t *testing.T) {
	c := NewMemoryCache(2)
	c.Put(cacheEntryFor("BTC", testMinute))
	c.Put(cacheEntryFor("ETH", testMinute))

	// Touch BTC so ETH becomes the eviction candidate.
	if _, ok := c.Get("BTC", testMinute); !ok {
		t.Fatal("setup: BTC should be cached")
	}
	c.Put(cacheEntryFor("ICP", testMinute))

	if _, ok := c.Get("ETH", testMinute); ok {
		t.Fatal("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("BTC", testMinute); !ok {
		t.Fatal("recently used entry should survive")
	}
}

func TestMemoryCachePruneExpired(t *testing.T) {
	c := NewMemoryCache(4)
	c.Put(cacheEntryFor("BTC", testMinute))

	c.Prune(testMinute + cacheTTLSeconds - 1)
	if _, ok := c.Get("BTC", testMinute); !ok {
		t.Fatal("entry should survive within its TTL")
	}

	c.Prune(testMinute + cacheTTLSeconds)
	if _, ok := c.Get("BTC", testMinute); ok {
		t.Fatal("expired entry should have been pruned")
	}
}

func TestInflightTable(t *testing.T) {
	tbl := newInflightTable()
	pair := asset.Pair{Base: asset.Asset{Symbol: "BTC"}, Quote: asset.Asset{Symbol: "USDT"}}

	release, ok := tbl.acquire(pair, testMinute)
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	if _, ok := tbl.acquire(pair, testMinute); ok {
		t.Fatal("duplicate acquire must fail")
	}
	if _, ok := tbl.acquire(pair, testMinute+60); !ok {
		t.Fatal("different minute is a different resolution")
	}
	release()
	if tbl.contains(pair, testMinute) {
		t.Fatal("release should clear the entry")
	}
}

func TestOutcallLimiter(t *testing.T) {
	l := newOutcallLimiter(10)
	if l.wouldExceed(10) {
		t.Fatal("reserving up to the limit is allowed")
	}
	release := l.reserve(8)
	if !l.wouldExceed(3) {
		t.Fatal("exceeding the limit must be detected")
	}
	if l.wouldExceed(2) {
		t.Fatal("filling up to the limit is allowed")
	}
	release()
	if l.outstanding() != 0 {
		t.Fatalf("expected empty limiter, got %d", l.outstanding())
	}
}
