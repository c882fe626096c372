package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"xrate-oracle/internal/api"
	"xrate-oracle/internal/asset"
	"xrate-oracle/internal/config"
	"xrate-oracle/internal/coordinator"
	"xrate-oracle/internal/forex"
	"xrate-oracle/internal/host"
	"xrate-oracle/internal/metrics"
	"xrate-oracle/internal/monitor"
	"xrate-oracle/internal/outcall"
	"xrate-oracle/internal/periodic"
	"xrate-oracle/internal/rate"
	"xrate-oracle/internal/scheduler"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// engine bundles the wired resolution stack.
type engine struct {
	coordinator *coordinator.Coordinator
	tasks       *periodic.Tasks
	registry    *prometheus.Registry
}

func (a *App) buildEngine() *engine {
	driver := outcall.NewDriver(outcall.NewHTTPClient(outcall.HTTPClientOptions{
		Timeout:   a.Config.Upstream.RequestTimeout,
		UserAgent: a.Config.Upstream.UserAgent,
	}), a.Logger)

	forexStore := forex.NewStore(forex.StoreOptions{
		DisableRetreat: a.Config.Engine.DisableWeekendRetreat,
	})

	privileged := make([]host.Principal, 0, len(a.Config.Engine.PrivilegedCallers))
	for _, p := range a.Config.Engine.PrivilegedCallers {
		privileged = append(privileged, host.Principal(p))
	}

	var cache coordinator.RateCache
	if a.Config.Engine.CacheBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		cache = coordinator.NewRedisCache(client, a.Logger)
	}

	coord := coordinator.New(driver, forexStore, coordinator.Options{
		Fees: coordinator.FeeSchedule{
			BaseFee:    a.Config.Engine.BaseFeeCycles,
			OutcallFee: a.Config.Engine.OutcallFeeCycles,
			MinimumFee: a.Config.Engine.MinimumFeeCycles,
		},
		RequestLimit:  a.Config.Engine.RequestLimit,
		CacheCapacity: a.Config.Engine.CacheCapacity,
		Cache:         cache,
		Privileged:    privileged,
		Logger:        a.Logger,
	})

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	tasks := periodic.NewTasks(driver, forexStore, coord, a.Logger)
	return &engine{coordinator: coord, tasks: tasks, registry: registry}
}

// Serve runs the oracle: ingress API plus the periodic tasks.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng := a.buildEngine()
	server := api.NewServer(a.Config.Server, eng.coordinator, eng.registry, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Name:         "heartbeat",
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	// Fill the forex store before taking traffic; fiat legs depend on it.
	eng.tasks.RefreshForex(ctx, uint64(time.Now().UTC().Unix()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	go func() {
		_ = sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			now := uint64(bucket.UTC().Unix())
			eng.tasks.Run(ctx, now)
			eng.coordinator.ForexStore().Prune(now, a.Config.Engine.ForexRetainDays)
			return nil
		})
	}()

	a.Logger.Info().Msg("oracle started")
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("shutdown incomplete")
		return err
	}
	a.Logger.Info().Msg("oracle stopped")
	return nil
}

// RateOptions configure a one-shot resolution.
type RateOptions struct {
	Base      string
	Quote     string
	Timestamp *uint64
	Caller    string
	Cycles    uint64
}

// Rate resolves a single pair against live upstreams and returns the reply
// envelope.
func (a *App) Rate(ctx context.Context, opts RateOptions) (api.Result, error) {
	eng := a.buildEngine()

	pairs, err := monitor.ParsePairs([]string{opts.Base + "/" + opts.Quote}, fiatSymbols())
	if err != nil {
		return api.Result{}, err
	}
	pair := pairs[0]

	// Fiat legs need the daily store; fill it once for ad-hoc queries.
	if pair.Base.Class == asset.Fiat || pair.Quote.Class == asset.Fiat {
		eng.tasks.RefreshForex(ctx, uint64(time.Now().UTC().Unix()))
	}

	env := host.NewMessageEnvironment(host.Principal(opts.Caller), opts.Cycles)
	out, err := eng.coordinator.GetExchangeRate(ctx, env, coordinator.Request{
		BaseAsset:  pair.Base,
		QuoteAsset: pair.Quote,
		Timestamp:  opts.Timestamp,
	})
	if err != nil {
		var rateErr *rate.Error
		if errors.As(err, &rateErr) {
			return api.Result{Err: rateErr}, nil
		}
		return api.Result{}, err
	}
	return api.Result{Ok: &out}, nil
}

// Monitor runs the recording poller against a remote oracle.
func (a *App) Monitor(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := monitor.NewClient(monitor.ClientOptions{
		BaseURL: a.Config.Monitor.OracleURL,
		Caller:  a.Config.Monitor.Caller,
		Cycles:  a.Config.Monitor.Cycles,
		Timeout: a.Config.Monitor.Timeout,
	}, a.Logger)

	pairs, err := monitor.ParsePairs(a.Config.Monitor.Pairs, fiatSymbols())
	if err != nil {
		return err
	}

	var store monitor.RecordStore
	if a.Config.Database.DSN != "" {
		pgStore, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		store = pgStore
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; records are logged only")
	}

	poller := monitor.NewPoller(client, store, pairs, a.Logger)
	sched := scheduler.New(scheduler.Options{
		Name:         "monitor",
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	err = sched.Run(ctx, poller.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*monitor.Store, func(), error) {
	pool, err := monitor.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store := monitor.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// fiatSymbols lists the currencies classified as fiat when parsing pair
// strings: the symbols the forex sources actually serve.
func fiatSymbols() []string {
	return []string{
		"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "SGD", "ILS",
		"MMK", "BAM", "UZS", "CNY", "SEK", "NOK", "DKK", "NZD", "KRW",
		"INR", "TRY", "PLN", "CZK", "HUF", "MXN", "BRL", "ZAR", "HKD",
	}
}
