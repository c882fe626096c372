package coordinator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/forex"
	"xrate-oracle/internal/host"
	"xrate-oracle/internal/host/hosttest"
	"xrate-oracle/internal/rate"
)

const testMinute = uint64(1_650_000_000) // minute-aligned
const testNow = testMinute + 30

var testFees = FeeSchedule{BaseFee: 200, OutcallFee: 1_000, MinimumFee: 100}

// fakeFetch simulates the upstream legs with canned results.
type fakeFetch struct {
	mu          sync.Mutex
	legCalls    int
	stableCalls int
	cryptoRates map[string]rate.Queried
	cryptoErrs  map[string]error
	stableRates map[string]rate.Queried
	stableErrs  map[string]error
	legsFetched int
}

func (f *fakeFetch) cryptoUSDTRate(_ context.Context, rc *requestContext, symbol string, _ uint64) (rate.Queried, error) {
	f.mu.Lock()
	f.legsFetched++
	f.mu.Unlock()
	for i := 0; i < f.legCalls; i++ {
		rc.countOutcall()
	}
	if err, ok := f.cryptoErrs[symbol]; ok {
		return rate.Queried{}, err
	}
	q, ok := f.cryptoRates[symbol]
	if !ok {
		return rate.Queried{}, errLegStarved
	}
	return q, nil
}

func (f *fakeFetch) stablecoinRate(_ context.Context, rc *requestContext, symbol string, _ uint64) (rate.Queried, error) {
	for i := 0; i < f.stableCalls; i++ {
		rc.countOutcall()
	}
	if err, ok := f.stableErrs[symbol]; ok {
		return rate.Queried{}, err
	}
	q, ok := f.stableRates[symbol]
	if !ok {
		return rate.Queried{}, errLegStarved
	}
	return q, nil
}

func (f *fakeFetch) planLegCalls() int              { return f.legCalls }
func (f *fakeFetch) planStablecoinCalls(string) int { return f.stableCalls }

func (f *fakeFetch) fetchedLegs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.legsFetched
}

func cryptoQueried(symbol string, values []uint64, queried int) rate.Queried {
	return rate.Queried{
		BaseAsset:    asset.Asset{Symbol: symbol, Class: asset.Crypto},
		QuoteAsset:   asset.USDTAsset(),
		Timestamp:    testMinute,
		Rates:        values,
		BaseQueried:  queried,
		BaseReceived: len(values),
	}
}

func newTestCoordinator(t *testing.T, fetch callExchanges) *Coordinator {
	t.Helper()
	store := forex.NewStore(forex.StoreOptions{})
	c := New(nil, store, Options{Fees: testFees, RequestLimit: 100})
	if fetch != nil {
		c.fetch = fetch
	}
	return c
}

func cryptoPairRequest(base, quote string) Request {
	ts := testMinute
	return Request{
		BaseAsset:  asset.Asset{Symbol: base, Class: asset.Crypto},
		QuoteAsset: asset.Asset{Symbol: quote, Class: asset.Crypto},
		Timestamp:  &ts,
	}
}

func env(cycles uint64) *hosttest.Environment {
	return hosttest.NewBuilder().WithCyclesAvailable(cycles).WithTimeSecs(testNow).Build()
}

func TestCryptoUSDTPairAveragesReceivedRates(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{
				41_800_000_000, 41_900_000_000, 41_900_000_000, 42_000_000_000,
			}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)
	e := env(testFees.WorstCase(5))

	out, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out.Rate != 41_900_000_000 {
		t.Fatalf("expected 41.9e9, got %d", out.Rate)
	}
	if out.Metadata.Decimals != 9 {
		t.Fatalf("expected 9 decimals, got %d", out.Metadata.Decimals)
	}
	if out.Metadata.BaseAssetNumReceivedRates != 4 || out.Metadata.BaseAssetNumQueriedSources != 5 {
		t.Fatalf("unexpected counts: %+v", out.Metadata)
	}
	if out.Timestamp != testMinute {
		t.Fatalf("expected minute-aligned timestamp, got %d", out.Timestamp)
	}
	if got, want := e.Accepted(), testFees.Total(5); got != want {
		t.Fatalf("expected %d cycles retained, got %d", want, got)
	}
}

func TestSingleSampleSkipsConsistencyCheck(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{41_900_000_000}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)

	out, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), cryptoPairRequest("BTC", "USDT"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out.Metadata.BaseAssetNumReceivedRates != 1 {
		t.Fatalf("expected single received rate, got %+v", out.Metadata)
	}
}

func TestAnonymousCallerRejectedWithoutOutcalls(t *testing.T) {
	fetch := &fakeFetch{legCalls: 5}
	c := newTestCoordinator(t, fetch)
	e := hosttest.NewBuilder().WithCaller(host.Anonymous).WithCyclesAvailable(1 << 40).WithTimeSecs(testNow).Build()

	_, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if !errors.Is(err, rate.ErrAnonymousPrincipalNotAllowed) {
		t.Fatalf("expected AnonymousPrincipalNotAllowed, got %v", err)
	}
	if fetch.fetchedLegs() != 0 {
		t.Fatal("no outcall may be issued for an anonymous caller")
	}
	if e.Accepted() != 0 {
		t.Fatal("no cycles may be retained from an anonymous caller")
	}
}

func TestInsufficientCyclesRejectedWithoutOutcalls(t *testing.T) {
	fetch := &fakeFetch{legCalls: 5}
	c := newTestCoordinator(t, fetch)
	e := env(testFees.WorstCase(5) - 1)

	_, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if !errors.Is(err, rate.ErrNotEnoughCycles) {
		t.Fatalf("expected NotEnoughCycles, got %v", err)
	}
	if fetch.fetchedLegs() != 0 {
		t.Fatal("no outcall may be issued without sufficient cycles")
	}
}

func TestFailedToAcceptCycles(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 1,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{41_900_000_000}, 1),
		},
	}
	c := newTestCoordinator(t, fetch)
	e := hosttest.NewBuilder().WithCyclesAvailable(1 << 40).WithTimeSecs(testNow).WithShortAccept().Build()

	_, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if !errors.Is(err, rate.ErrFailedToAcceptCycles) {
		t.Fatalf("expected FailedToAcceptCycles, got %v", err)
	}
}

func TestSecondRequestServedFromCache(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{41_900_000_000, 42_100_000_000}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)

	first, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), cryptoPairRequest("BTC", "USDT"))
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	e := env(testFees.WorstCase(5))
	second, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if fetch.fetchedLegs() != 1 {
		t.Fatalf("second request must not fetch, fetched %d legs", fetch.fetchedLegs())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached reply must be identical:\nfirst  %+v\nsecond %+v", first, second)
	}
	if got := e.Accepted(); got != testFees.BaseFee {
		t.Fatalf("cache hit retains the base fee only, got %d", got)
	}
}

func TestPendingWhileIdenticalRequestInflight(t *testing.T) {
	c := newTestCoordinator(t, &fakeFetch{legCalls: 5})
	pair := asset.Pair{
		Base:  asset.Asset{Symbol: "BTC", Class: asset.Crypto},
		Quote: asset.USDTAsset(),
	}
	release, ok := c.inflight.acquire(pair, testMinute)
	if !ok {
		t.Fatal("setup: acquire failed")
	}
	defer release()

	e := env(testFees.WorstCase(5))
	_, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if !errors.Is(err, rate.ErrPending) {
		t.Fatalf("expected Pending, got %v", err)
	}
	if got := e.Accepted(); got != testFees.MinimumFee {
		t.Fatalf("pending retains the minimum fee, got %d", got)
	}
}

func TestInflightEntryReleasedAfterReply(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{41_900_000_000}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)

	if _, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), cryptoPairRequest("BTC", "USDT")); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	pair := asset.Pair{
		Base:  asset.Asset{Symbol: "BTC", Class: asset.Crypto},
		Quote: asset.USDTAsset(),
	}
	if c.inflight.contains(pair, testMinute) {
		t.Fatal("inflight entry must be released after the reply")
	}
}

func TestInflightEntryReleasedAfterFailure(t *testing.T) {
	fetch := &fakeFetch{legCalls: 5, cryptoErrs: map[string]error{"DOGE": errLegStarved}}
	c := newTestCoordinator(t, fetch)

	_, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), cryptoPairRequest("DOGE", "USDT"))
	if !errors.Is(err, rate.ErrCryptoBaseAssetNotFound) {
		t.Fatalf("expected CryptoBaseAssetNotFound, got %v", err)
	}
	pair := asset.Pair{
		Base:  asset.Asset{Symbol: "DOGE", Class: asset.Crypto},
		Quote: asset.USDTAsset(),
	}
	if c.inflight.contains(pair, testMinute) {
		t.Fatal("inflight entry must be released after a failure")
	}
}

func TestRateLimitAppliesToUnprivileged(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{41_900_000_000}, 5),
		},
	}
	store := forex.NewStore(forex.StoreOptions{})
	c := New(nil, store, Options{
		Fees:         testFees,
		RequestLimit: 4,
		Privileged:   []host.Principal{host.CyclesMinting},
	})
	c.fetch = fetch

	e := env(testFees.WorstCase(5))
	_, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "USDT"))
	if !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	if got := e.Accepted(); got != testFees.MinimumFee {
		t.Fatalf("rate limited retains the minimum fee, got %d", got)
	}

	// The privileged caller is exempt and pays nothing.
	pe := hosttest.NewBuilder().WithCaller(host.CyclesMinting).WithTimeSecs(testNow).Build()
	out, err := c.GetExchangeRate(context.Background(), pe, cryptoPairRequest("BTC", "USDT"))
	if err != nil {
		t.Fatalf("privileged request failed: %v", err)
	}
	if out.Rate == 0 {
		t.Fatal("privileged request should resolve")
	}
	if pe.Accepted() != 0 {
		t.Fatal("privileged caller must not be charged")
	}
}

func TestInconsistentRatesRejected(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{
				40_000_000_000, 41_000_000_000, 50_000_000_000,
			}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)

	_, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), cryptoPairRequest("BTC", "USDT"))
	if !errors.Is(err, rate.ErrInconsistentRatesReceived) {
		t.Fatalf("expected InconsistentRatesReceived, got %v", err)
	}
}

func TestCryptoCryptoPairDividesLegs(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{40_000_000_000}, 5),
			"ICP": cryptoQueried("ICP", []uint64{8_000_000_000}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)

	e := env(testFees.WorstCase(10))
	out, err := c.GetExchangeRate(context.Background(), e, cryptoPairRequest("BTC", "ICP"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out.Rate != 5_000_000_000 {
		t.Fatalf("expected 5e9, got %d", out.Rate)
	}
	if out.Metadata.QuoteAssetNumQueriedSources != 5 {
		t.Fatalf("quote leg counts missing: %+v", out.Metadata)
	}
	if got, want := e.Accepted(), testFees.Total(10); got != want {
		t.Fatalf("expected %d retained, got %d", want, got)
	}
}

func withForexDay(c *Coordinator, day uint64, symbol string, value uint64) {
	c.forexStore.Put(day, map[string]rate.Queried{
		symbol: {
			BaseAsset:      asset.Asset{Symbol: symbol, Class: asset.Fiat},
			QuoteAsset:     asset.USDAsset(),
			Timestamp:      day,
			Rates:          []uint64{value},
			BaseQueried:    3,
			BaseReceived:   3,
			ForexTimestamp: day,
		},
	})
}

func stableQueried(symbol string, value uint64) rate.Queried {
	return cryptoQueried(symbol, []uint64{value}, 3)
}

func cryptoFiatRequest(base, quote string, baseClass, quoteClass asset.Class) Request {
	ts := testMinute
	return Request{
		BaseAsset:  asset.Asset{Symbol: base, Class: baseClass},
		QuoteAsset: asset.Asset{Symbol: quote, Class: quoteClass},
		Timestamp:  &ts,
	}
}

func TestCryptoFiatPairBridgesAndConverts(t *testing.T) {
	fetch := &fakeFetch{
		legCalls:    5,
		stableCalls: 2,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{46_000_000_000}, 5),
		},
		stableRates: map[string]rate.Queried{
			asset.DAI:  stableQueried(asset.DAI, rate.RateUnit),
			asset.USDC: stableQueried(asset.USDC, rate.RateUnit),
		},
	}
	c := newTestCoordinator(t, fetch)
	day := asset.DayStart(testMinute)
	withForexDay(c, day, "EUR", 1_150_000_000)

	e := env(testFees.WorstCase(9))
	out, err := c.GetExchangeRate(context.Background(), e, cryptoFiatRequest("BTC", "EUR", asset.Crypto, asset.Fiat))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// 46 USDT x 1.0 USD/USDT / 1.15 USD/EUR = 40 EUR.
	if out.Rate != 40_000_000_000 {
		t.Fatalf("expected 40e9, got %d", out.Rate)
	}
	if out.Metadata.ForexTimestamp == nil || *out.Metadata.ForexTimestamp != day {
		t.Fatalf("forex day missing from metadata: %+v", out.Metadata)
	}
	if out.Timestamp != testMinute {
		t.Fatalf("expected minute-aligned timestamp, got %d", out.Timestamp)
	}
	// 5 crypto calls + 2x2 stablecoin calls.
	if got, want := e.Accepted(), testFees.Total(9); got != want {
		t.Fatalf("expected %d retained, got %d", want, got)
	}
}

func TestFiatCryptoPairIsInverse(t *testing.T) {
	fetch := &fakeFetch{
		legCalls:    5,
		stableCalls: 2,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{46_000_000_000}, 5),
		},
		stableRates: map[string]rate.Queried{
			asset.DAI:  stableQueried(asset.DAI, rate.RateUnit),
			asset.USDC: stableQueried(asset.USDC, rate.RateUnit),
		},
	}
	c := newTestCoordinator(t, fetch)
	withForexDay(c, asset.DayStart(testMinute), "EUR", 1_150_000_000)

	out, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(9)), cryptoFiatRequest("EUR", "BTC", asset.Fiat, asset.Crypto))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// 1 / 40 EUR per BTC = 0.025 BTC per EUR.
	if out.Rate != 25_000_000 {
		t.Fatalf("expected 0.025e9, got %d", out.Rate)
	}
}

func TestFiatPairFromStoreOnly(t *testing.T) {
	fetch := &fakeFetch{legCalls: 5}
	c := newTestCoordinator(t, fetch)
	day := asset.DayStart(testMinute)
	withForexDay(c, day, "EUR", 1_200_000_000)
	withForexDay(c, day, "JPY", 8_000_000)

	e := env(testFees.WorstCase(0))
	out, err := c.GetExchangeRate(context.Background(), e, cryptoFiatRequest("EUR", "JPY", asset.Fiat, asset.Fiat))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out.Rate != 150_000_000_000 {
		t.Fatalf("expected 150e9, got %d", out.Rate)
	}
	if fetch.fetchedLegs() != 0 {
		t.Fatal("fiat pairs must not fetch from exchanges")
	}
	if got := e.Accepted(); got != testFees.BaseFee {
		t.Fatalf("fiat pair retains the base fee only, got %d", got)
	}
}

func TestFiatIdentity(t *testing.T) {
	c := newTestCoordinator(t, &fakeFetch{})
	out, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(0)), cryptoFiatRequest("CHF", "CHF", asset.Fiat, asset.Fiat))
	if err != nil {
		t.Fatalf("identity request failed: %v", err)
	}
	if out.Rate != rate.RateUnit {
		t.Fatalf("identity rate should be 1e9, got %d", out.Rate)
	}
}

func TestMissingForexDayFailsBeforeFetching(t *testing.T) {
	fetch := &fakeFetch{legCalls: 5, stableCalls: 2}
	c := newTestCoordinator(t, fetch)

	e := env(testFees.WorstCase(9))
	_, err := c.GetExchangeRate(context.Background(), e, cryptoFiatRequest("BTC", "EUR", asset.Crypto, asset.Fiat))
	if !errors.Is(err, rate.ErrForexInvalidTimestamp) {
		t.Fatalf("expected ForexInvalidTimestamp, got %v", err)
	}
	if fetch.fetchedLegs() != 0 {
		t.Fatal("a missing forex day must fail before any fetch")
	}
	if got := e.Accepted(); got != testFees.MinimumFee {
		t.Fatalf("invalid request retains the minimum fee, got %d", got)
	}
}

func TestStablecoinStarvationSurfaces(t *testing.T) {
	fetch := &fakeFetch{
		legCalls:    5,
		stableCalls: 2,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{46_000_000_000}, 5),
		},
		stableRates: map[string]rate.Queried{
			asset.DAI: stableQueried(asset.DAI, rate.RateUnit),
		},
		stableErrs: map[string]error{asset.USDC: errLegStarved},
	}
	c := newTestCoordinator(t, fetch)
	withForexDay(c, asset.DayStart(testMinute), "EUR", 1_150_000_000)

	_, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(9)), cryptoFiatRequest("BTC", "EUR", asset.Crypto, asset.Fiat))
	if !errors.Is(err, rate.ErrStablecoinRateTooFewRates) {
		t.Fatalf("expected StablecoinRateTooFewRates, got %v", err)
	}
}

func TestFutureTimestampRejected(t *testing.T) {
	c := newTestCoordinator(t, &fakeFetch{legCalls: 5})
	future := testNow + 3_600
	req := Request{
		BaseAsset:  asset.Asset{Symbol: "BTC", Class: asset.Crypto},
		QuoteAsset: asset.USDTAsset(),
		Timestamp:  &future,
	}
	var rateErr *rate.Error
	_, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), req)
	if !errors.As(err, &rateErr) || rateErr.Kind != rate.KindOther || rateErr.Code != rate.CodeTimestampInFuture {
		t.Fatalf("expected future-timestamp error, got %v", err)
	}
}

func TestInvalidSymbolRejected(t *testing.T) {
	c := newTestCoordinator(t, &fakeFetch{legCalls: 5})
	req := cryptoPairRequest("B?TC", "USDT")
	var rateErr *rate.Error
	_, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(5)), req)
	if !errors.As(err, &rateErr) || rateErr.Code != rate.CodeBaseSymbolInvalid {
		t.Fatalf("expected invalid base symbol error, got %v", err)
	}
}

func TestInverseLawHolds(t *testing.T) {
	fetch := &fakeFetch{
		legCalls: 5,
		cryptoRates: map[string]rate.Queried{
			"BTC": cryptoQueried("BTC", []uint64{40_000_000_000}, 5),
			"ICP": cryptoQueried("ICP", []uint64{8_000_000_000}, 5),
		},
	}
	c := newTestCoordinator(t, fetch)

	forward, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(10)), cryptoPairRequest("BTC", "ICP"))
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	backward, err := c.GetExchangeRate(context.Background(), env(testFees.WorstCase(10)), cryptoPairRequest("ICP", "BTC"))
	if err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	product := forward.Rate * backward.Rate
	if product != rate.RateUnit*rate.RateUnit {
		t.Fatalf("inverse law violated: %d x %d = %d", forward.Rate, backward.Rate, product)
	}
}
