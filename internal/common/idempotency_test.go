package common_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Minute}, mr
}

func TestIdemRejectsReplay(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(common.IdempotencyHeader, "retry-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send("/sessions/a/items").Code)

	replay := send("/sessions/a/items")
	require.Equal(t, http.StatusConflict, replay.Code)
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &body))
	require.Equal(t, "IDEMPOTENT_REPLAY", body.Error.Code)

	require.Equal(t, http.StatusOK, send("/sessions/b/items").Code, "keys are scoped per path")
	require.Equal(t, int32(2), calls.Load())
}

func TestIdemKeyExpires(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(common.IdempotencyHeader, "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, send())
	mr.FastForward(2 * time.Minute)
	require.Equal(t, http.StatusNoContent, send())
}

func TestIdemReleasesKeyAfterFailure(t *testing.T) {
	idem, mr := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", "quantity must be at least 1", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/sessions/a/items", nil)
		req.Header.Set(common.IdempotencyHeader, "add-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusBadRequest, send())
	require.Empty(t, mr.Keys(), "rejected request must not hold the key")
	require.Equal(t, http.StatusOK, send())
	require.Len(t, mr.Keys(), 1)
	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, int32(2), calls.Load())
}

func TestIdemPassThrough(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })

	noStore := common.Idem{}.Middleware(next)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(common.IdempotencyHeader, "k")
		noStore.ServeHTTP(httptest.NewRecorder(), req)
	}

	idem, _ := newIdem(t)
	noHeader := idem.Middleware(next)
	for i := 0; i < 2; i++ {
		noHeader.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	}
	require.Equal(t, 4, calls)
}
