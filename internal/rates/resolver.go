package rates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/pharma-quote/internal/currency"
	"github.com/noah-isme/pharma-quote/internal/obs"
	"github.com/noah-isme/pharma-quote/internal/resilience"
)

const maxPayloadBytes = 1 << 20

var (
	// ErrSourceUnavailable wraps any failure of a single rate source.
	ErrSourceUnavailable = errors.New("rates: source unavailable")
	// ErrAllSourcesFailed is logged when no source produced a usable payload.
	ErrAllSourcesFailed = errors.New("rates: all sources failed")

	errUnknownShape = errors.New("unrecognised payload shape")
)

// ResolverConfig groups Resolver dependencies and tuning.
type ResolverConfig struct {
	Sources []Source
	Client  *http.Client
	// BaseCode defaults to currency.BaseCode.
	BaseCode string

	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Timeout     time.Duration

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	Now    func() time.Time
	Logger zerolog.Logger
}

// Resolver turns an ordered list of unreliable sources into a complete rate table.
type Resolver struct {
	sources []sourceClient
	base    string
	now     func() time.Time
	logger  zerolog.Logger
}

type sourceClient struct {
	Source
	http resilience.HTTPClient
}

// NewResolver wires a resilient HTTP client and breaker for every source.
func NewResolver(cfg ResolverConfig) *Resolver {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	base := currency.NormalizeCode(cfg.BaseCode)
	if base == "" {
		base = currency.BaseCode
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	r := &Resolver{base: base, now: now, logger: cfg.Logger}
	for _, src := range cfg.Sources {
		if len(src.Shapes) == 0 {
			src.Shapes = DefaultShapes(base)
		}
		logger := cfg.Logger.With().Str("source", src.Name).Logger()
		r.sources = append(r.sources, sourceClient{
			Source: src,
			http: resilience.HTTPClient{
				Client:      client,
				Breaker:     resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).WithTarget("rates:" + src.Name).WithLogger(logger),
				BaseBackoff: cfg.BaseBackoff,
				MaxAttempts: cfg.MaxAttempts,
				Jitter:      cfg.Jitter,
				Timeout:     cfg.Timeout,
				Target:      src.Name,
				Logger:      &logger,
			},
		})
	}
	return r
}

// Resolve probes sources in order and returns the first usable table. It
// never fails: when every source is unusable the static fallback table is
// returned with IsFallback set.
func (r *Resolver) Resolve(ctx context.Context) currency.Table {
	ctx, span := otel.Tracer("rates").Start(ctx, "rates.resolve")
	defer span.End()

	for _, src := range r.sources {
		live, shape, err := r.fetch(ctx, src)
		if err != nil {
			recordSource(src.Name, "failure")
			r.logger.Warn().Err(err).Str("source", src.Name).Msg("rate_source_failed")
			continue
		}
		recordSource(src.Name, "success")
		table := currency.NewTable(r.canonical(live), r.now(), src.Name)
		span.SetAttributes(attribute.String("rates.source", src.Name), attribute.Bool("rates.fallback", false))
		r.logger.Debug().Str("source", src.Name).Str("shape", shape).Int("codes", len(live)).Msg("rates_resolved")
		return table
	}

	span.SetAttributes(attribute.Bool("rates.fallback", true))
	r.logger.Error().Err(ErrAllSourcesFailed).Int("sources", len(r.sources)).Msg("using fallback rates")
	return currency.FallbackTable(r.now())
}

func (r *Resolver) fetch(ctx context.Context, src sourceClient) (map[string]decimal.Decimal, string, error) {
	resp, err := src.http.Get(ctx, src.URL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, src.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: read body: %w", ErrSourceUnavailable, src.Name, err)
	}
	live, shape, err := normalize(body, src.Shapes)
	if err != nil {
		return nil, shape, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, src.Name, err)
	}
	return live, shape, nil
}

// canonical picks the supported codes out of an upstream map, accepting either
// upper- or lower-case keys.
func (r *Resolver) canonical(raw map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(raw))
	for _, def := range currency.Supported() {
		if v, ok := raw[def.Code]; ok {
			out[def.Code] = v
			continue
		}
		if v, ok := raw[strings.ToLower(def.Code)]; ok {
			out[def.Code] = v
		}
	}
	return out
}

// SourceStatus reports the breaker of each source in probe order.
func (r *Resolver) SourceStatus() []resilience.Status {
	out := make([]resilience.Status, 0, len(r.sources))
	for _, src := range r.sources {
		st := src.http.Breaker.Status()
		st.Target = src.Name
		out = append(out, st)
	}
	return out
}

func recordSource(source, result string) {
	if obs.RateSourceRequests == nil {
		return
	}
	obs.RateSourceRequests.WithLabelValues(source, result).Inc()
}
