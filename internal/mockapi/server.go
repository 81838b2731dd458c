package mockapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/common"
	"github.com/noah-isme/restaurant-admin/internal/health"
	"github.com/noah-isme/restaurant-admin/internal/obs"
	"github.com/noah-isme/restaurant-admin/internal/ratelimit"
	"github.com/noah-isme/restaurant-admin/internal/security"
)

// Options wires the development backend.
type Options struct {
	Store          *Store
	Issuer         *auth.Issuer
	Logger         zerolog.Logger
	AllowedOrigins []string
	// Limiter throttles the owner endpoints per token subject. Nil disables it.
	Limiter ratelimit.Limiter
	// TokenLimiter throttles POST /api/dev/token per client address.
	TokenLimiter ratelimit.Limiter
	// Metrics and Gatherer enable request metrics and /metrics when set.
	Metrics  *obs.HTTPMetrics
	Gatherer prometheus.Gatherer
	Tracing  bool
	Health   health.Checker

	// HSTSMaxAge is sent on TLS requests when > 0.
	HSTSMaxAge int
}

const maxJSONBody = 64 << 10

// BySubject keys rate limits by the authenticated user, falling back to the
// client address.
func BySubject(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok && id != "" {
		return "sub:" + id
	}
	return ratelimit.ByClientIP(r)
}

// NewRouter returns the HTTP handler of the development backend.
func NewRouter(opts Options) http.Handler {
	store := opts.Store
	if store == nil {
		store = NewStore()
	}
	h := &Handler{Store: store, Issuer: opts.Issuer, Logger: opts.Logger}
	authMiddleware := auth.Middleware{}
	if opts.Issuer != nil {
		authMiddleware.Verifier = opts.Issuer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: opts.Logger}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: opts.HSTSMaxAge}.Middleware)
	// Credentials are only allowed for listed origins; browsers reject them
	// next to the wildcard.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: len(opts.AllowedOrigins) > 0,
		MaxAge:           300,
	}))

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	healthHandler := health.Handler{Checker: opts.Health, RedisTimeout: 300 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	jsonBody := security.BodyLimit{Max: maxJSONBody}.Middleware
	limit := func(next http.Handler) http.Handler { return next }
	if opts.Limiter != nil {
		limit = ratelimit.Handler{
			Limiter: opts.Limiter,
			Key:     BySubject,
			OnError: func(err error) { opts.Logger.Warn().Err(err).Msg("rate_limit_unavailable") },
		}.Middleware
	}

	tokenLimit := func(next http.Handler) http.Handler { return next }
	if opts.TokenLimiter != nil {
		tokenLimit = ratelimit.Handler{
			Limiter: opts.TokenLimiter,
			Key:     ratelimit.ByClientIP,
			OnError: func(err error) { opts.Logger.Warn().Err(err).Msg("rate_limit_unavailable") },
		}.Middleware
	}

	r.Route("/api/my/restaurant", func(my chi.Router) {
		my.Use(authMiddleware.RequireAuth)
		my.Use(limit)
		my.Get("/", h.GetMyRestaurant)
		my.Post("/", h.CreateMyRestaurant)
		my.Put("/", h.UpdateMyRestaurant)
		my.Get("/order", h.GetMyRestaurantOrders)
		my.With(jsonBody).Put("/order/{orderId}/status", h.UpdateOrderStatus)
	})

	r.Route("/api/dev", func(dev chi.Router) {
		dev.With(tokenLimit, jsonBody).Post("/token", h.Token)
		dev.Get("/images/{id}", h.Image)
		dev.With(authMiddleware.RequireAuth, jsonBody).Post("/orders", h.SeedOrder)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
