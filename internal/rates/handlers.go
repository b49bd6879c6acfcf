package rates

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pharma-quote/internal/common"
	"github.com/noah-isme/pharma-quote/internal/currency"
)

// Handler exposes the rate cache over HTTP.
type Handler struct {
	Cache  *Cache
	Logger zerolog.Logger
}

// TableView is the JSON form of a rate table.
type TableView struct {
	Base       string          `json:"base"`
	Rates      []currency.Rate `json:"rates"`
	ResolvedAt *time.Time      `json:"resolvedAt"`
	IsFallback bool            `json:"isFallback"`
	Source     string          `json:"source,omitempty"`
	Loading    bool            `json:"loading"`
}

// NewTableView renders table in display order.
func NewTableView(table currency.Table, loading bool) TableView {
	view := TableView{
		Base:       currency.BaseCode,
		Rates:      table.Ordered(),
		IsFallback: table.IsFallback,
		Source:     table.Source,
		Loading:    loading,
	}
	if !table.ResolvedAt.IsZero() {
		at := table.ResolvedAt.UTC()
		view.ResolvedAt = &at
	}
	return view
}

// Current returns the table currently served.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "rate cache not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewTableView(h.Cache.Current(), h.Cache.Loading())})
}

// Refresh re-resolves rates and returns the resulting table.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "rate cache not configured", nil)
		return
	}
	table := h.Cache.RefreshNow(r.Context())
	h.Logger.Info().Bool("fallback", table.IsFallback).Str("source", table.Source).Msg("manual_rate_refresh")
	common.JSON(w, http.StatusOK, map[string]any{"data": NewTableView(table, h.Cache.Loading())})
}
