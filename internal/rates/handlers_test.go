package rates_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/rates"
)

type tableEnvelope struct {
	Data struct {
		Base       string     `json:"base"`
		IsFallback bool       `json:"isFallback"`
		Source     string     `json:"source"`
		ResolvedAt *time.Time `json:"resolvedAt"`
		Rates      []struct {
			Code         string `json:"code"`
			Symbol       string `json:"symbol"`
			UnitsPerBase string `json:"unitsPerBase"`
		} `json:"rates"`
	} `json:"data"`
}

func TestHandlerCurrentAndRefresh(t *testing.T) {
	cache := rates.NewCache(&stubResolver{usd: "0.02"}, time.Minute, zerolog.Nop())
	h := &rates.Handler{Cache: cache, Logger: zerolog.Nop()}

	rr := httptest.NewRecorder()
	h.Current(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rates", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var before tableEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &before))
	require.True(t, before.Data.IsFallback)
	require.Nil(t, before.Data.ResolvedAt)
	require.Equal(t, "INR", before.Data.Base)
	require.Equal(t, "INR", before.Data.Rates[0].Code)
	require.Equal(t, "₹", before.Data.Rates[0].Symbol)

	rr = httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/api/v1/rates/refresh", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var after tableEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &after))
	require.False(t, after.Data.IsFallback)
	require.Equal(t, "stub", after.Data.Source)
	require.NotNil(t, after.Data.ResolvedAt)
	require.Equal(t, "USD", after.Data.Rates[1].Code)
	require.Equal(t, "0.02", after.Data.Rates[1].UnitsPerBase)
}
