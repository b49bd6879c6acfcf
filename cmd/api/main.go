package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/noah-isme/pharma-quote/internal/catalog"
	"github.com/noah-isme/pharma-quote/internal/common"
	"github.com/noah-isme/pharma-quote/internal/config"
	"github.com/noah-isme/pharma-quote/internal/health"
	"github.com/noah-isme/pharma-quote/internal/lock"
	"github.com/noah-isme/pharma-quote/internal/obs"
	"github.com/noah-isme/pharma-quote/internal/ratelimit"
	"github.com/noah-isme/pharma-quote/internal/rates"
	"github.com/noah-isme/pharma-quote/internal/resilience"
	"github.com/noah-isme/pharma-quote/internal/security"
	"github.com/noah-isme/pharma-quote/internal/session"
)

const serviceName = "pharma-quote-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: cfg.AppVersion,
			Endpoint:       cfg.OTLPEndpoint,
			Exporter:       cfg.TracingExporter,
			SamplingRatio:  cfg.TracingRatio,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	products, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load catalog")
	}
	tag, err := language.Parse(cfg.CatalogLanguage)
	if err != nil {
		logger.Warn().Err(err).Str("language", cfg.CatalogLanguage).Msg("unknown catalog language, using english")
		tag = language.English
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Products:     products,
		Language:     tag,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})
	logger.Info().Int("products", catalogService.Count()).Msg("catalog loaded")

	sources := rates.DefaultSources()
	if len(cfg.RateSources) > 0 {
		sources, err = rates.ParseSources(cfg.RateSources)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse rate sources")
		}
	}
	ratesLogger := logger.With().Str("component", "rates").Logger()
	resolver := rates.NewResolver(rates.ResolverConfig{
		Sources:             sources,
		Client:              &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		MaxAttempts:         cfg.RateRetryAttempts,
		BaseBackoff:         cfg.RateRetryBase,
		Jitter:              cfg.RateRetryJitter,
		Timeout:             cfg.RateRequestTimeout,
		BreakerMinRequests:  cfg.CircuitMinRequests,
		BreakerFailureRatio: cfg.CircuitFailureRatio,
		BreakerOpenFor:      cfg.CircuitOpenFor,
		Logger:              ratesLogger,
	})
	rateCache := rates.NewCache(resolver, cfg.RateRefreshInterval, ratesLogger)
	if err := rateCache.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start rate refresh")
	}
	ratesHandler := &rates.Handler{Cache: rateCache, Logger: ratesLogger}

	var (
		store       session.Store
		locker      session.Locker
		memoryStore *session.MemoryStore
	)
	if redisClient != nil {
		store = session.NewRedisStore(redisClient, cfg.SessionTTL, "pharma:session:")
		locker = lock.Redis{
			Client:       redisClient,
			TTL:          cfg.LockTTL,
			RetryBackoff: cfg.LockRetryBackoff,
			Prefix:       "pharma:lock:",
		}
	} else {
		memoryStore = session.NewMemoryStore(cfg.SessionTTL, nil)
		store = memoryStore
		locker = &lock.Local{}
	}
	sessionLogger := logger.With().Str("component", "session").Logger()
	sessionHandler := &session.Handler{
		Svc: &session.Service{
			Store:   store,
			Locker:  locker,
			Catalog: catalogService,
			Rates:   rateCache,
			Logger:  sessionLogger,
		},
		Logger: sessionLogger,
	}

	refreshLimiter, err := ratelimit.New(cfg.RateRefreshLimit, "pharma:ratelimit:refresh", redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise refresh rate limit")
	}
	refreshLimit := ratelimit.Handler{
		Limiter: refreshLimiter,
		Key:     ratelimit.KeyByClientIP,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store unavailable") },
	}

	idem := common.Idem{TTL: cfg.IdempotencyTTL, Prefix: "pharma:idem:"}
	if redisClient != nil {
		idem.R = redisClient
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.MetricsBuckets)
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeaders,
		EnableHSTS: cfg.SecurityHSTS,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders: []string{"X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{
		Rates:        rateCache,
		Sources:      resolver,
		RedisTimeout: cfg.HealthRedisTimeout,
	}
	if redisClient != nil {
		healthHandler.Checker = health.RedisChecker{Client: redisClient}
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.HTTPMaxBodyBytes}.Middleware)

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)

		v.Get("/rates", ratesHandler.Current)
		v.With(refreshLimit.Middleware).Post("/rates/refresh", ratesHandler.Refresh)

		v.Post("/sessions", sessionHandler.Create)
		v.Route("/sessions/{sessionID}", func(s chi.Router) {
			s.Get("/", sessionHandler.Get)
			s.Delete("/", sessionHandler.End)
			s.Get("/quote", sessionHandler.Quote)
			s.With(idem.Middleware).Post("/items", sessionHandler.AddItem)
			s.Delete("/items", sessionHandler.ClearCart)
			s.Put("/items/{productID}", sessionHandler.SetQuantity)
			s.Patch("/items/{productID}", sessionHandler.AdjustQuantity)
			s.Delete("/items/{productID}", sessionHandler.RemoveItem)
			s.Put("/surcharge", sessionHandler.SetSurcharge)
			s.Put("/currency", sessionHandler.SetCurrency)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		health.SetReady(false)
		rateCache.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if memoryStore != nil {
		g.Go(func() error {
			sweepSessions(gctx, memoryStore, cfg.SessionTTL, sessionLogger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited unexpectedly")
	}
}

func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if !cfg.RedisEnabled() {
		logger.Info().Msg("redis not configured, using in-process sessions and locks")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

// sweepSessions evicts expired in-memory sessions until ctx is done.
func sweepSessions(ctx context.Context, store *session.MemoryStore, ttl time.Duration, logger zerolog.Logger) {
	interval := min(ttl/4, 10*time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug().Int("evicted", n).Msg("sessions swept")
			}
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
