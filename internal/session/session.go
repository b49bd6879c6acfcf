package session

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pharma-quote/internal/cart"
	"github.com/noah-isme/pharma-quote/internal/currency"
)

var (
	// ErrNotFound indicates the session does not exist or has expired.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidSurcharge is returned for non-numeric or negative percentages.
	ErrInvalidSurcharge = errors.New("session: surcharge must be a number between 0 and 1000")
	// ErrInvalidCurrency is returned for an empty currency code.
	ErrInvalidCurrency = errors.New("session: currency code is required")
)

// Session is one shopper's cart plus pricing selection.
type Session struct {
	ID               string          `json:"id"`
	Cart             *cart.Cart      `json:"cart"`
	SurchargePercent decimal.Decimal `json:"surchargePercent"`
	Currency         string          `json:"currency"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:               id,
		Cart:             cart.New(),
		SurchargePercent: decimal.Zero,
		Currency:         currency.BaseCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ClearCart empties the cart and resets the surcharge.
func (s *Session) ClearCart() {
	s.Cart.Clear()
	s.SurchargePercent = decimal.Zero
}

func (s *Session) ensureCart() {
	if s.Cart == nil {
		s.Cart = cart.New()
	}
}
