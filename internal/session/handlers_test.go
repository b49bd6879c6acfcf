package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/session"
)

type quoteEnvelope struct {
	Data struct {
		Session struct {
			ID               string `json:"id"`
			Currency         string `json:"currency"`
			SurchargePercent string `json:"surchargePercent"`
			Cart             []struct {
				Product struct {
					ID string `json:"id"`
				} `json:"product"`
				Quantity int `json:"quantity"`
			} `json:"cart"`
		} `json:"session"`
		Totals struct {
			GrandTotal   string `json:"grandTotal"`
			HasSurcharge bool   `json:"hasSurcharge"`
			ItemCount    int    `json:"itemCount"`
			Display      struct {
				GrandTotal string `json:"grandTotal"`
			} `json:"display"`
		} `json:"totals"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	h := &session.Handler{Svc: newService(t), Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Post("/sessions", h.Create)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.End)
		r.Get("/quote", h.Quote)
		r.Post("/items", h.AddItem)
		r.Delete("/items", h.ClearCart)
		r.Put("/items/{productID}", h.SetQuantity)
		r.Patch("/items/{productID}", h.AdjustQuantity)
		r.Delete("/items/{productID}", h.RemoveItem)
		r.Put("/surcharge", h.SetSurcharge)
		r.Put("/currency", h.SetCurrency)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, quoteEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env quoteEnvelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestSessionHTTPFlow(t *testing.T) {
	router := newRouter(t)

	code, created := do(t, router, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, code)
	id := created.Data.Session.ID
	require.NotEmpty(t, id)
	base := "/sessions/" + id

	code, env := do(t, router, http.MethodPost, base+"/items", `{"productId":"p1","quantity":"2"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, env.Data.Totals.ItemCount)

	code, _ = do(t, router, http.MethodPost, base+"/items", `{"productId":"p2","quantity":1,"exact":true}`)
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, router, http.MethodPut, base+"/surcharge", `{"percent":10}`)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Data.Totals.HasSurcharge)

	code, env = do(t, router, http.MethodPut, base+"/currency", `{"code":"usd"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "USD", env.Data.Session.Currency)
	require.Equal(t, "3.3", env.Data.Totals.GrandTotal)
	require.Equal(t, "$ 3.30", env.Data.Totals.Display.GrandTotal)

	code, env = do(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, env.Data.Session.Cart, 2)
	require.Equal(t, "p1", env.Data.Session.Cart[0].Product.ID)

	code, env = do(t, router, http.MethodPatch, base+"/items/p1", `{"delta":-1}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, env.Data.Totals.ItemCount)

	code, env = do(t, router, http.MethodPut, base+"/items/p2", `{"quantity":"abc"}`)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, env.Data.Session.Cart, 1)

	code, env = do(t, router, http.MethodDelete, base+"/items", "")
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, env.Data.Session.Cart)
	require.False(t, env.Data.Totals.HasSurcharge)

	code, _ = do(t, router, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, code)

	code, env = do(t, router, http.MethodGet, base+"/quote", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSessionHTTPRejections(t *testing.T) {
	router := newRouter(t)
	_, created := do(t, router, http.MethodPost, "/sessions", "")
	base := "/sessions/" + created.Data.Session.ID

	cases := []struct {
		method, path, body, code string
	}{
		{http.MethodPost, base + "/items", `{"productId":"p1","quantity":"0","exact":true}`, "INVALID_QUANTITY"},
		{http.MethodPost, base + "/items", `{"productId":"p1","quantity":"abc","exact":true}`, "INVALID_QUANTITY"},
		{http.MethodPost, base + "/items", `{"quantity":1}`, "VALIDATION_FAILED"},
		{http.MethodPost, base + "/items", `{"productId":"p1","unknown":1}`, "BAD_REQUEST"},
		{http.MethodPut, base + "/surcharge", `{"percent":"-5"}`, "INVALID_SURCHARGE"},
		{http.MethodPut, base + "/surcharge", `{"percent":"ten"}`, "INVALID_SURCHARGE"},
		{http.MethodPut, base + "/surcharge", `{"percent":"1e50000000"}`, "INVALID_SURCHARGE"},
		{http.MethodPost, base + "/items", `{"productId":"p1","quantity":"99999999999999999999","exact":true}`, "INVALID_QUANTITY"},
		{http.MethodPut, base + "/currency", `{"code":""}`, "VALIDATION_FAILED"},
		{http.MethodPost, base + "/items", `{"productId":"zzz"}`, "NOT_FOUND"},
	}
	for _, tc := range cases {
		code, env := do(t, router, tc.method, tc.path, tc.body)
		require.GreaterOrEqual(t, code, 400, tc.body)
		require.Less(t, code, 500, tc.body)
		require.Equal(t, tc.code, env.Error.Code, tc.body)
	}

	code, env := do(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, env.Data.Session.Cart)
	require.Equal(t, "0", env.Data.Session.SurchargePercent)
}
