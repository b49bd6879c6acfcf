package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/pharma-quote/internal/common"
	"github.com/noah-isme/pharma-quote/internal/currency"
	"github.com/noah-isme/pharma-quote/internal/resilience"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness, e.g. to drain traffic during shutdown.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// RateStatus reports on the served rate table.
type RateStatus interface {
	Current() currency.Table
	Loading() bool
}

// SourceReporter lists the breaker state of each rate source.
type SourceReporter interface {
	SourceStatus() []resilience.Status
}

// RedisChecker pings a Redis client.
type RedisChecker struct {
	Client redis.UniversalClient
}

// PingRedis issues PING bounded by timeout.
func (c RedisChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	// Checker is optional; nil means Redis is not configured.
	Checker      Checker
	Rates        RateStatus
	Sources      SourceReporter
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness. Fallback rates are reported but never fail the
// probe since quotes remain available on defaults.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{}
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting_down"
	} else {
		status["server"] = "ok"
	}

	redisStatus := "disabled"
	if h.Checker != nil {
		redisStatus = "ok"
		if err := h.Checker.PingRedis(r.Context(), h.redisTimeout()); err != nil {
			redisStatus = err.Error()
			healthy = false
		}
	}
	status["redis"] = redisStatus

	if h.Rates != nil {
		table := h.Rates.Current()
		rates := map[string]any{
			"fallback": table.IsFallback,
			"source":   table.Source,
			"loading":  h.Rates.Loading(),
		}
		if !table.ResolvedAt.IsZero() {
			rates["resolvedAt"] = table.ResolvedAt.UTC()
		}
		if h.Sources != nil {
			rates["sources"] = h.Sources.SourceStatus()
		}
		status["rates"] = rates
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
