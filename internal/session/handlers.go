package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pharma-quote/internal/cart"
	"github.com/noah-isme/pharma-quote/internal/common"
)

// Handler wires session services to HTTP.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// rawValue accepts a JSON string, number, or null and keeps its text form so
// coercion rules can be applied to user input.
type rawValue string

func (v *rawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = rawValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("must be a string or number")
	}
	*v = rawValue(n.String())
	return nil
}

type addItemRequest struct {
	ProductID string   `json:"productId" validate:"required"`
	Quantity  rawValue `json:"quantity"`
	Exact     bool     `json:"exact"`
}

type setQuantityRequest struct {
	Quantity rawValue `json:"quantity"`
}

type adjustQuantityRequest struct {
	Delta int `json:"delta" validate:"min=-100000,max=100000"`
}

type surchargeRequest struct {
	Percent rawValue `json:"percent" validate:"required"`
}

type currencyRequest struct {
	Code string `json:"code" validate:"required,max=8"`
}

// Create starts a new session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.Svc.QuoteFor(sess)})
}

// Get returns the session cart and its quote.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// Quote returns only the totals for a session.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"totals": quote.Totals,
		"rates":  quote.Rates,
	}})
}

// End discards a session.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload addItemRequest
	if err := common.DecodeJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	quantity := cart.CoerceAddQuantity(string(payload.Quantity))
	if payload.Exact {
		quantity = cart.CoerceSetQuantity(string(payload.Quantity))
	}
	sess, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "sessionID"), payload.ProductID, quantity, payload.Exact)
	h.respond(w, sess, err)
}

// SetQuantity replaces a line quantity.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var payload setQuantityRequest
	if err := common.DecodeJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := h.Svc.SetQuantity(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "productID"), cart.CoerceSetQuantity(string(payload.Quantity)))
	h.respond(w, sess, err)
}

// AdjustQuantity changes a line quantity by a delta.
func (h *Handler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var payload adjustQuantityRequest
	if err := common.DecodeJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := h.Svc.AdjustQuantity(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "productID"), payload.Delta)
	h.respond(w, sess, err)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "productID"))
	h.respond(w, sess, err)
}

// ClearCart empties the cart and resets the surcharge.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.ClearCart(r.Context(), chi.URLParam(r, "sessionID"))
	h.respond(w, sess, err)
}

// SetSurcharge applies a surcharge percentage.
func (h *Handler) SetSurcharge(w http.ResponseWriter, r *http.Request) {
	var payload surchargeRequest
	if err := common.DecodeJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := h.Svc.SetSurcharge(r.Context(), chi.URLParam(r, "sessionID"), string(payload.Percent))
	h.respond(w, sess, err)
}

// SetCurrency selects the display currency.
func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	var payload currencyRequest
	if err := common.DecodeJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := h.Svc.SetCurrency(r.Context(), chi.URLParam(r, "sessionID"), payload.Code)
	h.respond(w, sess, err)
}

func (h *Handler) respond(w http.ResponseWriter, sess *Session, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Svc.QuoteFor(sess)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := AppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Msg("session_request_failed")
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}
