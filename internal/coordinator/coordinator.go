// Package coordinator orchestrates one rate request end to end: caller and
// cycle validation, cache and inflight checks, admission control, parallel
// upstream fetches, aggregation, and fee settlement.
package coordinator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/exchange"
	"xrate-oracle/internal/forex"
	"xrate-oracle/internal/host"
	"xrate-oracle/internal/metrics"
	"xrate-oracle/internal/outcall"
	"xrate-oracle/internal/rate"
	"xrate-oracle/internal/stablecoin"
)

// StablecoinBases are the USD-pegged coins feeding the USDT/USD bridge.
var StablecoinBases = []string{asset.DAI, asset.USDC}

// Cached rates answered to the privileged caller must be backed by at least
// this many sources.
const minRatesForPrivileged = 2

var (
	errLegStarved = errors.New("coordinator: no source returned a rate")
	errZeroSample = errors.New("coordinator: zero sample cannot be inverted")
)

func invertSampleValue(v uint64) (uint64, bool) {
	if v == 0 {
		return 0, false
	}
	return rate.RateUnit * rate.RateUnit / v, true
}

// Request is one ingress rate query. A nil Timestamp means "now".
type Request struct {
	BaseAsset  asset.Asset `json:"base_asset"`
	QuoteAsset asset.Asset `json:"quote_asset"`
	Timestamp  *uint64     `json:"timestamp,omitempty"`
}

// Options configure a Coordinator.
type Options struct {
	Fees           FeeSchedule
	RequestLimit   int
	CacheCapacity  int
	Cache          RateCache
	Privileged     []host.Principal
	Sources        []*exchange.Source
	Logger         zerolog.Logger
}

// Coordinator owns the caches, the inflight table, and the forex store, and
// drives the resolution state machine.
type Coordinator struct {
	fetch      callExchanges
	forexStore *forex.Store
	cache      RateCache
	inflight   *inflightTable
	limiter    *outcallLimiter
	fees       FeeSchedule
	privileged map[host.Principal]struct{}
	logger     zerolog.Logger
}

// New wires a Coordinator around the outcall driver and forex store.
func New(driver *outcall.Driver, forexStore *forex.Store, opts Options) *Coordinator {
	sources := opts.Sources
	if sources == nil {
		sources = exchange.Sources()
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache(opts.CacheCapacity)
	}
	if opts.Fees == (FeeSchedule{}) {
		opts.Fees = DefaultFees()
	}
	privileged := make(map[host.Principal]struct{}, len(opts.Privileged))
	for _, p := range opts.Privileged {
		privileged[p] = struct{}{}
	}
	logger := opts.Logger.With().Str("component", "coordinator").Logger()
	return &Coordinator{
		fetch:      newExchangeFetcher(driver, sources, logger),
		forexStore: forexStore,
		cache:      cache,
		inflight:   newInflightTable(),
		limiter:    newOutcallLimiter(opts.RequestLimit),
		fees:       opts.Fees,
		privileged: privileged,
		logger:     logger,
	}
}

// ForexStore exposes the daily store for the periodic refresher.
func (c *Coordinator) ForexStore() *forex.Store { return c.forexStore }

// PruneCaches evicts expired rate-cache entries.
func (c *Coordinator) PruneCaches(nowSecs uint64) { c.cache.Prune(nowSecs) }

func (c *Coordinator) isPrivileged(p host.Principal) bool {
	_, ok := c.privileged[p]
	return ok
}

// GetExchangeRate resolves one request. On error the returned *rate.Error
// carries the variant; cycles are settled on every path.
func (c *Coordinator) GetExchangeRate(ctx context.Context, env host.Environment, req Request) (rate.ExchangeRate, error) {
	privileged := c.isPrivileged(env.Caller())
	metrics.RequestsTotal.WithLabelValues(boolLabel(privileged)).Inc()

	out, err := c.resolve(ctx, env, req, privileged)
	if err != nil {
		var rateErr *rate.Error
		if !errors.As(err, &rateErr) {
			rateErr = rate.OtherError(rate.CodeRateOverflow, err.Error())
			err = rateErr
		}
		metrics.ErrorsTotal.WithLabelValues(string(rateErr.Kind)).Inc()
		c.logger.Debug().
			Str("caller", string(env.Caller())).
			Str("pair", req.BaseAsset.Symbol+"/"+req.QuoteAsset.Symbol).
			Str("kind", string(rateErr.Kind)).
			Msg("request failed")
	}
	return out, err
}

func (c *Coordinator) resolve(ctx context.Context, env host.Environment, req Request, privileged bool) (rate.ExchangeRate, error) {
	if env.Caller().IsAnonymous() {
		return rate.ExchangeRate{}, rate.ErrAnonymousPrincipalNotAllowed
	}

	base, err := asset.Normalize(req.BaseAsset)
	if err != nil {
		return rate.ExchangeRate{}, rate.BaseSymbolInvalidError(req.BaseAsset.Symbol)
	}
	quote, err := asset.Normalize(req.QuoteAsset)
	if err != nil {
		return rate.ExchangeRate{}, rate.QuoteSymbolInvalidError(req.QuoteAsset.Symbol)
	}

	now := env.TimeSecs()
	requested := now
	if req.Timestamp != nil {
		requested = *req.Timestamp
	}
	tsMinute := asset.MinuteStart(requested)
	if tsMinute > now {
		return rate.ExchangeRate{}, rate.TimestampInFutureError(tsMinute, now)
	}

	call := resolution{
		c:          c,
		env:        env,
		privileged: privileged,
		pair:       asset.Pair{Base: base, Quote: quote},
		tsMinute:   tsMinute,
		now:        now,
		rc:         newRequestContext(),
	}

	switch {
	case base.Class == asset.Crypto && quote.Class == asset.Crypto:
		return call.cryptoPair(ctx)
	case base.Class == asset.Crypto && quote.Class == asset.Fiat:
		return call.cryptoFiatPair(ctx, false)
	case base.Class == asset.Fiat && quote.Class == asset.Crypto:
		return call.cryptoFiatPair(ctx, true)
	default:
		return call.fiatPair()
	}
}

// resolution carries one request through the state machine.
type resolution struct {
	c          *Coordinator
	env        host.Environment
	privileged bool
	pair       asset.Pair
	tsMinute   uint64
	now        uint64
	rc         *requestContext
}

// chargeMinimum settles the minimum fee for requests that fail validation
// after passing the cycles check.
func (r *resolution) chargeMinimum() error {
	if r.privileged {
		return nil
	}
	if accepted := r.env.AcceptCycles(r.c.fees.MinimumFee); accepted != r.c.fees.MinimumFee {
		return rate.ErrFailedToAcceptCycles
	}
	return nil
}

// settle retains the base fee plus the outcalls actually issued. It runs
// strictly before the reply so cycle conservation holds on every path.
func (r *resolution) settle() error {
	if r.privileged {
		return nil
	}
	total := r.c.fees.Total(r.rc.outcallCount())
	if accepted := r.env.AcceptCycles(total); accepted != total {
		return rate.ErrFailedToAcceptCycles
	}
	return nil
}

// ensureCycles rejects the request before any outcall when the attached
// cycles cannot cover the worst case of the plan.
func (r *resolution) ensureCycles(plannedCalls int) error {
	if r.privileged {
		return nil
	}
	if r.env.CyclesAvailable() < r.c.fees.WorstCase(plannedCalls) {
		return rate.ErrNotEnoughCycles
	}
	return nil
}

// admit runs the shared Inflight? -> Planning transitions: dedupe, rate
// limit, then register the inflight entry and reserve the planned calls.
// The returned cleanup must run on every exit path after admission.
func (r *resolution) admit(plannedCalls int) (cleanup func(), err error) {
	if r.c.inflight.contains(r.pair, r.tsMinute) {
		if err := r.chargeMinimum(); err != nil {
			return nil, err
		}
		return nil, rate.ErrPending
	}
	if !r.privileged && r.c.limiter.wouldExceed(plannedCalls) {
		if err := r.chargeMinimum(); err != nil {
			return nil, err
		}
		return nil, rate.ErrRateLimited
	}

	releaseInflight, ok := r.c.inflight.acquire(r.pair, r.tsMinute)
	if !ok {
		if err := r.chargeMinimum(); err != nil {
			return nil, err
		}
		return nil, rate.ErrPending
	}
	releaseLimiter := r.c.limiter.reserve(plannedCalls)
	metrics.InflightRequests.Inc()
	return func() {
		metrics.InflightRequests.Dec()
		releaseLimiter()
		releaseInflight()
	}, nil
}

// cachedCryptoRate consults the per-symbol cache. USDT itself needs no
// fetch: it is the unit everything else is quoted in. The privileged caller
// only trusts cached entries backed by enough sources.
func (r *resolution) cachedCryptoRate(symbol string) (rate.Queried, bool) {
	if symbol == asset.USDT {
		return rate.Queried{
			BaseAsset:  asset.USDTAsset(),
			QuoteAsset: asset.USDTAsset(),
			Timestamp:  r.tsMinute,
			Rates:      []uint64{rate.RateUnit},
		}, true
	}
	cached, ok := r.c.cache.Get(symbol, r.tsMinute)
	if !ok {
		return rate.Queried{}, false
	}
	if r.privileged && cached.BaseReceived < minRatesForPrivileged {
		return rate.Queried{}, false
	}
	metrics.CacheHits.Inc()
	return cached, true
}

// cryptoLeg returns the symbol's USDT rate, fetching and caching when the
// cache misses.
func (r *resolution) cryptoLeg(ctx context.Context, symbol string, cached rate.Queried, haveCached bool, notFound *rate.Error) (rate.Queried, error) {
	if haveCached {
		return cached, nil
	}
	fetched, err := r.c.fetch.cryptoUSDTRate(ctx, r.rc, symbol, r.tsMinute)
	if err != nil {
		return rate.Queried{}, notFound
	}
	r.c.cache.Put(fetched)
	return fetched, nil
}

// finish validates, converts, caches nothing further, and settles cycles
// before returning the reply.
func (r *resolution) finish(q rate.Queried) (rate.ExchangeRate, error) {
	validated, err := q.Validate()
	if err != nil {
		if settleErr := r.settle(); settleErr != nil {
			return rate.ExchangeRate{}, settleErr
		}
		return rate.ExchangeRate{}, err
	}
	out, err := validated.ExchangeRate()
	if err != nil {
		if settleErr := r.settle(); settleErr != nil {
			return rate.ExchangeRate{}, settleErr
		}
		return rate.ExchangeRate{}, err
	}
	if err := r.settle(); err != nil {
		return rate.ExchangeRate{}, err
	}
	return out, nil
}

// failSettled settles cycles and returns the given failure.
func (r *resolution) failSettled(err error) (rate.ExchangeRate, error) {
	if settleErr := r.settle(); settleErr != nil {
		return rate.ExchangeRate{}, settleErr
	}
	return rate.ExchangeRate{}, err
}

// cryptoPair handles crypto/crypto: both legs priced in USDT, one divided
// by the other.
func (r *resolution) cryptoPair(ctx context.Context) (rate.ExchangeRate, error) {
	baseCached, haveBase := r.cachedCryptoRate(r.pair.Base.Symbol)
	quoteCached, haveQuote := r.cachedCryptoRate(r.pair.Quote.Symbol)

	planned := 0
	if !haveBase {
		planned += r.c.fetch.planLegCalls()
	}
	if !haveQuote {
		planned += r.c.fetch.planLegCalls()
	}

	if err := r.ensureCycles(planned); err != nil {
		return rate.ExchangeRate{}, err
	}

	if planned == 0 {
		return r.finish(baseCached.Divide(quoteCached))
	}

	cleanup, err := r.admit(planned)
	if err != nil {
		return rate.ExchangeRate{}, err
	}
	defer cleanup()

	baseRate, err := r.cryptoLeg(ctx, r.pair.Base.Symbol, baseCached, haveBase, rate.ErrCryptoBaseAssetNotFound)
	if err != nil {
		return r.failSettled(err)
	}
	quoteRate, err := r.cryptoLeg(ctx, r.pair.Quote.Symbol, quoteCached, haveQuote, rate.ErrCryptoQuoteAssetNotFound)
	if err != nil {
		return r.failSettled(err)
	}
	return r.finish(baseRate.Divide(quoteRate))
}

// stablecoinBridge assembles the USDT/USD conversion from cached and
// freshly fetched stablecoin legs.
func (r *resolution) stablecoinBridge(ctx context.Context, missing []string, cachedRates []rate.Queried) (rate.Queried, error) {
	rates := append([]rate.Queried(nil), cachedRates...)
	for _, symbol := range missing {
		fetched, err := r.c.fetch.stablecoinRate(ctx, r.rc, symbol, r.tsMinute)
		if err != nil {
			r.c.logger.Debug().Str("symbol", symbol).Uint64("minute", r.tsMinute).Msg("stablecoin leg unavailable")
			continue
		}
		r.c.cache.Put(fetched)
		rates = append(rates, fetched)
	}
	return stablecoin.USDRate(rates)
}

// cryptoFiatPair handles crypto/fiat, and fiat/crypto via inversion: the
// crypto leg is moved USDT -> USD over the bridge, then USD -> fiat over
// the forex store.
func (r *resolution) cryptoFiatPair(ctx context.Context, inverted bool) (rate.ExchangeRate, error) {
	cryptoAsset, fiatAsset := r.pair.Base, r.pair.Quote
	if inverted {
		cryptoAsset, fiatAsset = r.pair.Quote, r.pair.Base
	}

	cryptoCached, haveCrypto := r.cachedCryptoRate(cryptoAsset.Symbol)

	var (
		missingCoins []string
		cachedCoins  []rate.Queried
	)
	for _, symbol := range StablecoinBases {
		if cached, ok := r.cachedCryptoRate(symbol); ok {
			cachedCoins = append(cachedCoins, cached)
		} else {
			missingCoins = append(missingCoins, symbol)
		}
	}

	planned := 0
	if !haveCrypto {
		planned += r.c.fetch.planLegCalls()
	}
	for _, symbol := range missingCoins {
		planned += r.c.fetch.planStablecoinCalls(symbol)
	}

	if err := r.ensureCycles(planned); err != nil {
		return rate.ExchangeRate{}, err
	}

	// The fiat leg never issues an outcall; a store miss fails the request
	// before any fetch.
	forexRate, err := r.c.forexStore.Get(r.tsMinute, r.now, fiatAsset.Symbol, asset.USD)
	if err != nil {
		if chargeErr := r.chargeMinimum(); chargeErr != nil {
			return rate.ExchangeRate{}, chargeErr
		}
		return rate.ExchangeRate{}, r.invertForexError(err, inverted)
	}

	if planned == 0 {
		bridge, err := stablecoin.USDRate(cachedCoins)
		if err != nil {
			return r.failSettled(err)
		}
		return r.composeCryptoFiat(cryptoCached, bridge, forexRate, inverted)
	}

	cleanup, err := r.admit(planned)
	if err != nil {
		return rate.ExchangeRate{}, err
	}
	defer cleanup()

	bridge, err := r.stablecoinBridge(ctx, missingCoins, cachedCoins)
	if err != nil {
		return r.failSettled(err)
	}

	notFound := rate.ErrCryptoBaseAssetNotFound
	if inverted {
		notFound = rate.ErrCryptoQuoteAssetNotFound
	}
	cryptoRate, err := r.cryptoLeg(ctx, cryptoAsset.Symbol, cryptoCached, haveCrypto, notFound)
	if err != nil {
		return r.failSettled(err)
	}

	return r.composeCryptoFiat(cryptoRate, bridge, forexRate, inverted)
}

func (r *resolution) composeCryptoFiat(cryptoRate, bridge, forexRate rate.Queried, inverted bool) (rate.ExchangeRate, error) {
	combined := cryptoRate.Multiply(bridge).Divide(forexRate)
	if inverted {
		combined = combined.Inverted()
	}
	combined.Timestamp = r.tsMinute
	return r.finish(combined)
}

// invertForexError remaps fiat-leg errors when the fiat asset sits on the
// quote side of the requested pair.
func (r *resolution) invertForexError(err error, inverted bool) error {
	if !inverted {
		// The fiat asset is the quote; the store reported it as a base.
		if errors.Is(err, rate.ErrForexBaseAssetNotFound) {
			return rate.ErrForexQuoteAssetNotFound
		}
	}
	return err
}

// fiatPair handles fiat/fiat entirely from the forex store.
func (r *resolution) fiatPair() (rate.ExchangeRate, error) {
	if err := r.ensureCycles(0); err != nil {
		return rate.ExchangeRate{}, err
	}
	q, err := r.c.forexStore.Get(r.tsMinute, r.now, r.pair.Base.Symbol, r.pair.Quote.Symbol)
	if err != nil {
		if chargeErr := r.chargeMinimum(); chargeErr != nil {
			return rate.ExchangeRate{}, chargeErr
		}
		return rate.ExchangeRate{}, err
	}
	q.Timestamp = r.tsMinute
	return r.finish(q)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
