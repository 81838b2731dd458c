package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/config"
	"github.com/noah-isme/restaurant-admin/internal/health"
	"github.com/noah-isme/restaurant-admin/internal/mockapi"
	"github.com/noah-isme/restaurant-admin/internal/obs"
	"github.com/noah-isme/restaurant-admin/internal/ratelimit"
)

const tokenMintsPerMinute = 30

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "mockapi").Logger()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "restaurant-mockapi",
			Component:     "dev-backend",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var (
		redisClient *redis.Client
		checker     health.Checker
	)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		cancel()
		checker = readinessChecker{redis: redisClient}
	}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:   cfg.MockAPIJWTSecret,
		Issuer:   cfg.MockAPIIssuer,
		Audience: cfg.MockAPIAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token issuer")
	}

	limiter, err := ratelimit.NewRate(cfg.MockAPIRateLimit, redisClient, "mockapi")
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.MockAPIRateLimit).Msg("initialise rate limiter")
	}

	// Token minting is keyed by address, so instances behind one Redis share
	// the window.
	var tokenLimiter ratelimit.Limiter
	if redisClient != nil {
		tokenLimiter = ratelimit.Sliding{Client: redisClient, Prefix: "mockapi:token:", Window: time.Minute, Max: tokenMintsPerMinute}
	} else if tokenLimiter, err = ratelimit.NewRate(fmt.Sprintf("%d-M", tokenMintsPerMinute), nil, "mockapi-token"); err != nil {
		logger.Fatal().Err(err).Msg("initialise token rate limiter")
	}

	router := mockapi.NewRouter(mockapi.Options{
		Store:          mockapi.NewStore(),
		Issuer:         issuer,
		Logger:         logger,
		AllowedOrigins: cfg.MockAPICORSAllowedOrigins,
		Limiter:        limiter,
		TokenLimiter:   tokenLimiter,
		Metrics:        obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, prometheus.DefaultRegisterer),
		Gatherer:       prometheus.DefaultGatherer,
		Tracing:        cfg.TracingEnabled,
		Health:         checker,
	})

	srv := &http.Server{
		Addr:              cfg.MockAPIAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

type readinessChecker struct {
	redis *redis.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
