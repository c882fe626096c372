package coordinator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/exchange"
	"xrate-oracle/internal/metrics"
	"xrate-oracle/internal/outcall"
	"xrate-oracle/internal/rate"
)

// requestContext is the mutable state of one in-flight resolution: the
// outcalls issued so far and the sources that have already failed, which
// later legs of the same request skip.
type requestContext struct {
	mu       sync.Mutex
	outcalls int
	failed   map[string]struct{}
}

func newRequestContext() *requestContext {
	return &requestContext{failed: make(map[string]struct{})}
}

func (rc *requestContext) countOutcall() {
	rc.mu.Lock()
	rc.outcalls++
	rc.mu.Unlock()
}

func (rc *requestContext) markFailed(sourceID string) {
	rc.mu.Lock()
	rc.failed[sourceID] = struct{}{}
	rc.mu.Unlock()
}

func (rc *requestContext) hasFailed(sourceID string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.failed[sourceID]
	return ok
}

func (rc *requestContext) outcallCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.outcalls
}

// callExchanges is how the coordinator reaches upstream sources; tests
// substitute it.
type callExchanges interface {
	// cryptoUSDTRate fetches the symbol priced in USDT from every usable
	// source. Failing when no source returned a sample.
	cryptoUSDTRate(ctx context.Context, rc *requestContext, symbol string, tsMinute uint64) (rate.Queried, error)
	// stablecoinRate fetches one stablecoin priced in USDT, inverting
	// markets quoted the other way around.
	stablecoinRate(ctx context.Context, rc *requestContext, symbol string, tsMinute uint64) (rate.Queried, error)
	// planLegCalls counts the outcalls a crypto leg would issue.
	planLegCalls() int
	// planStablecoinCalls counts the outcalls a stablecoin leg would issue.
	planStablecoinCalls(symbol string) int
}

// exchangeFetcher is the production callExchanges backed by the outcall
// driver and the source catalog.
type exchangeFetcher struct {
	driver  *outcall.Driver
	sources []*exchange.Source
	logger  zerolog.Logger
}

func newExchangeFetcher(driver *outcall.Driver, sources []*exchange.Source, logger zerolog.Logger) *exchangeFetcher {
	return &exchangeFetcher{
		driver:  driver,
		sources: sources,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

func (f *exchangeFetcher) planLegCalls() int {
	return len(f.sources)
}

func (f *exchangeFetcher) planStablecoinCalls(symbol string) int {
	count := 0
	for _, src := range f.sources {
		if _, ok := src.StablecoinPairFor(symbol); ok {
			count++
		}
	}
	return count
}

// legFetch describes one outcall of a leg.
type legFetch struct {
	source *exchange.Source
	base   string
	quote  string
	invert bool
}

// fetchLeg issues every fetch of a leg concurrently and collects the
// samples that arrive. Per-source failures are tolerated and recorded.
func (f *exchangeFetcher) fetchLeg(ctx context.Context, rc *requestContext, fetches []legFetch, tsMinute uint64) []rate.Sample {
	type result struct {
		sample rate.Sample
		src    string
		err    error
	}
	results := make(chan result, len(fetches))

	var wg sync.WaitGroup
	for _, fetch := range fetches {
		wg.Add(1)
		go func(fetch legFetch) {
			defer wg.Done()
			rc.countOutcall()
			body, err := f.driver.Fetch(ctx, outcall.Request{
				SourceID: fetch.source.ID,
				URL:      fetch.source.URL(fetch.base, fetch.quote, tsMinute),
				MaxBytes: fetch.source.MaxResponseBytes,
			})
			if err != nil {
				metrics.OutcallsTotal.WithLabelValues(fetch.source.ID, "http_error").Inc()
				results <- result{src: fetch.source.ID, err: err}
				return
			}
			sample, err := fetch.source.ExtractSample(body, tsMinute)
			if err != nil {
				metrics.OutcallsTotal.WithLabelValues(fetch.source.ID, "extract_error").Inc()
				results <- result{src: fetch.source.ID, err: err}
				return
			}
			if fetch.invert {
				inverted, ok := invertSampleValue(sample.Value)
				if !ok {
					metrics.OutcallsTotal.WithLabelValues(fetch.source.ID, "extract_error").Inc()
					results <- result{src: fetch.source.ID, err: errZeroSample}
					return
				}
				sample.Value = inverted
			}
			metrics.OutcallsTotal.WithLabelValues(fetch.source.ID, "ok").Inc()
			results <- result{sample: sample, src: fetch.source.ID}
		}(fetch)
	}
	wg.Wait()
	close(results)

	samples := make([]rate.Sample, 0, len(fetches))
	for r := range results {
		if r.err != nil {
			f.logger.Debug().Err(r.err).Str("source", r.src).Uint64("minute", tsMinute).Msg("source dropped from request")
			rc.markFailed(r.src)
			continue
		}
		samples = append(samples, r.sample)
	}
	return samples
}

func (f *exchangeFetcher) cryptoUSDTRate(ctx context.Context, rc *requestContext, symbol string, tsMinute uint64) (rate.Queried, error) {
	fetches := make([]legFetch, 0, len(f.sources))
	for _, src := range f.sources {
		if rc.hasFailed(src.ID) {
			continue
		}
		fetches = append(fetches, legFetch{source: src, base: symbol, quote: asset.USDT})
	}
	samples := f.fetchLeg(ctx, rc, fetches, tsMinute)
	if len(samples) == 0 {
		return rate.Queried{}, errLegStarved
	}
	crypto := asset.Asset{Symbol: symbol, Class: asset.Crypto}
	return rate.NewQueried(crypto, asset.USDTAsset(), tsMinute, samples, len(fetches)), nil
}

func (f *exchangeFetcher) stablecoinRate(ctx context.Context, rc *requestContext, symbol string, tsMinute uint64) (rate.Queried, error) {
	fetches := make([]legFetch, 0, len(f.sources))
	for _, src := range f.sources {
		if rc.hasFailed(src.ID) {
			continue
		}
		pair, ok := src.StablecoinPairFor(symbol)
		if !ok {
			continue
		}
		// Markets quoted as (USDT, coin) are inverted so USDT always ends
		// up the quote asset.
		fetches = append(fetches, legFetch{
			source: src,
			base:   pair.Base,
			quote:  pair.Quote,
			invert: pair.Base == asset.USDT,
		})
	}
	samples := f.fetchLeg(ctx, rc, fetches, tsMinute)
	if len(samples) == 0 {
		return rate.Queried{}, errLegStarved
	}
	coin := asset.Asset{Symbol: symbol, Class: asset.Crypto}
	return rate.NewQueried(coin, asset.USDTAsset(), tsMinute, samples, len(fetches)), nil
}

var _ callExchanges = (*exchangeFetcher)(nil)
