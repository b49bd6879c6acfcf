package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/currency"
	"github.com/noah-isme/pharma-quote/internal/health"
	"github.com/noah-isme/pharma-quote/internal/resilience"
)

type stubChecker struct {
	redisErr error
}

func (s stubChecker) PingRedis(_ context.Context, _ time.Duration) error {
	return s.redisErr
}

type stubRates struct{ table currency.Table }

func (s stubRates) Current() currency.Table { return s.table }
func (s stubRates) Loading() bool           { return false }

type stubSources []resilience.Status

func (s stubSources) SourceStatus() []resilience.Status { return s }

func TestLive(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyWithoutRedis(t *testing.T) {
	handler := health.Handler{
		Rates:   stubRates{table: currency.FallbackTable(time.Time{})},
		Sources: stubSources{{Target: "frankfurter", State: "open"}, {Target: "currency-api", State: "closed"}},
	}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status struct {
		Redis string `json:"redis"`
		Rates struct {
			Fallback bool                `json:"fallback"`
			Sources  []resilience.Status `json:"sources"`
		} `json:"rates"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "disabled", status.Redis)
	require.True(t, status.Rates.Fallback)
	require.Len(t, status.Rates.Sources, 2)
	require.Equal(t, "open", status.Rates.Sources[0].State, "open source breakers are reported without failing readiness")
}

func TestReadyRedisFailure(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{redisErr: errors.New("redis down")}, RedisTimeout: 10 * time.Millisecond}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRedisChecker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := health.Handler{Checker: health.RedisChecker{Client: client}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"redis":"ok"`)
}
