package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/apiclient"
	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/config"
	"github.com/noah-isme/restaurant-admin/internal/lock"
	"github.com/noah-isme/restaurant-admin/internal/notify"
	"github.com/noah-isme/restaurant-admin/internal/obs"
	"github.com/noah-isme/restaurant-admin/internal/order"
	"github.com/noah-isme/restaurant-admin/internal/querycache"
	"github.com/noah-isme/restaurant-admin/internal/resilience"
	"github.com/noah-isme/restaurant-admin/internal/restaurant"
)

const usage = `usage: restaurant-admin [-metrics-file path] <command> [flags]

commands:
  get          show my restaurant
  create       create my restaurant
  update       update my restaurant
  orders       list my restaurant's orders
  set-status   change an order's status
  token        print the bearer token in use
`

func main() {
	os.Exit(run())
}

func run() int {
	global := flag.NewFlagSet("restaurant-admin", flag.ContinueOnError)
	metricsFile := global.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := obs.NewLoggerTo(os.Stderr, cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "restaurant-admin",
			Component:     "cli",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	metrics := obs.NewAPIMetrics(cfg.MetricsNamespace, registry)
	breakerMetrics := resilience.NewMetrics(registry)
	if *metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(*metricsFile, registry); err != nil {
				logger.Error().Err(err).Str("path", *metricsFile).Msg("write metrics")
			}
		}()
	}

	a, cleanup, err := wire(cfg, logger, metrics, breakerMetrics, os.Stdout)
	if err != nil {
		logger.Error().Err(err).Msg("initialise client")
		return 1
	}
	defer cleanup()

	return a.dispatch(ctx, global.Arg(0), global.Args()[1:])
}

// app holds the hooks shared by every command. One cache client per process.
type app struct {
	out         io.Writer
	logger      zerolog.Logger
	tokens      auth.TokenProvider
	restaurants restaurant.API
	orders      order.API
}

func wire(cfg *config.Config, logger zerolog.Logger, metrics *obs.APIMetrics, breakerMetrics *resilience.Metrics, out io.Writer) (*app, func(), error) {
	cleanup := func() {}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:      "restaurant-api",
		MinRequests: 10,
		OpenFor:     30 * time.Second,
		Logger:      logger,
		Metrics:     breakerMetrics,
	})
	client, err := apiclient.New(apiclient.Options{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.APIRequestTimeout,
		MaxAttempts: cfg.APIMaxAttempts,
		Breaker:     breaker,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, cleanup, err
	}

	var tokens auth.TokenProvider = auth.Static(cfg.AuthToken)
	if cfg.UsesClientCredentials() {
		tokens = auth.NewCaching(auth.ClientCredentials{
			TokenURL:     cfg.AuthTokenURL,
			ClientID:     cfg.AuthClientID,
			ClientSecret: cfg.AuthClientSecret,
			Audience:     cfg.AuthAudience,
			Client:       apiclient.NewHTTPClient(),
		}, cfg.AuthTokenSkew, logger)
	}

	var (
		store  querycache.Store
		locker querycache.Locker
		scope  func(context.Context) (string, error)
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		cleanup = func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}
		store = querycache.NewRedisStore(rdb, "restaurant-admin:", cfg.QueryCacheTTL)
		locker = lock.Redis{Client: rdb, Prefix: "restaurant-admin:"}
		// A shared Redis may serve several accounts.
		scope = func(ctx context.Context) (string, error) {
			return auth.Identity(ctx, tokens, cfg.APIBaseURL)
		}
	}
	cache := querycache.New(querycache.Options{
		Store:     store,
		StaleTime: cfg.QueryStaleTime,
		Logger:    logger,
		Metrics:   metrics,
		Lock:      locker,
		Scope:     scope,
	})

	sinks := notify.Multi{notify.Writer{Out: out}, notify.Log{Logger: logger}}
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.Webhook{
			URL:    cfg.NotifyWebhookURL,
			Secret: cfg.NotifyWebhookSecret,
			Client: notify.HTTPClient(5 * time.Second),
		})
	}
	notifier := notify.Instrumented{Next: sinks, Metrics: metrics}

	return &app{
		out:         out,
		logger:      logger,
		tokens:      tokens,
		restaurants: restaurant.API{Client: client, Tokens: tokens, Notifier: notifier, Cache: cache, Logger: logger},
		orders:      order.API{Client: client, Tokens: tokens, Notifier: notifier, Cache: cache, Logger: logger},
	}, cleanup, nil
}
