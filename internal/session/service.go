package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pharma-quote/internal/cart"
	"github.com/noah-isme/pharma-quote/internal/catalog"
	"github.com/noah-isme/pharma-quote/internal/common"
	"github.com/noah-isme/pharma-quote/internal/currency"
	"github.com/noah-isme/pharma-quote/internal/obs"
	"github.com/noah-isme/pharma-quote/internal/pricing"
)

// Locker serialises writes to one session.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// ProductFinder resolves catalog products by id.
type ProductFinder interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

// RateReader exposes the rate table currently served.
type RateReader interface {
	Current() currency.Table
}

// Service encapsulates session and cart operations.
type Service struct {
	Store   Store
	Locker  Locker
	Catalog ProductFinder
	Rates   RateReader
	Now     func() time.Time
	NewID   func() string
	Logger  zerolog.Logger
}

// Quote is a session with its priced totals.
type Quote struct {
	Session *Session       `json:"session"`
	Totals  pricing.Totals `json:"totals"`
	Rates   RatesMeta      `json:"rates"`
}

// RatesMeta describes the table a quote was priced with.
type RatesMeta struct {
	IsFallback bool       `json:"isFallback"`
	Source     string     `json:"source,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Locker == nil {
		return errors.New("session service not configured")
	}
	return nil
}

// Create starts an empty session priced in the base currency.
func (s *Service) Create(ctx context.Context) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	sess := newSession(s.newID(), s.now())
	if err := s.Store.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.Logger.Debug().Str("session_id", sess.ID).Msg("session_created")
	return sess, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, strings.TrimSpace(id))
}

// End discards a session.
func (s *Service) End(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	return s.Locker.WithLock(ctx, lockKey(id), func(ctx context.Context) error {
		return s.Store.Delete(ctx, id)
	})
}

// AddItem adds a catalog product. With exact set, quantities below 1 are
// rejected; otherwise they count as 1.
func (s *Service) AddItem(ctx context.Context, id, productID string, quantity int, exact bool) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.Catalog == nil {
		return nil, errors.New("session catalog not configured")
	}
	op := "add"
	if exact {
		op = "add_exact"
	}
	return s.mutate(ctx, id, op, func(sess *Session) error {
		product, err := s.Catalog.Get(ctx, strings.TrimSpace(productID))
		if err != nil {
			return err
		}
		if exact {
			return sess.Cart.AddExact(product, quantity)
		}
		sess.Cart.AddOrIncrement(product, quantity)
		return nil
	})
}

// SetQuantity replaces a line quantity; zero removes it.
func (s *Service) SetQuantity(ctx context.Context, id, productID string, quantity int) (*Session, error) {
	return s.mutate(ctx, id, "set", func(sess *Session) error {
		sess.Cart.SetQuantity(productID, quantity)
		return nil
	})
}

// AdjustQuantity changes a line quantity by delta.
func (s *Service) AdjustQuantity(ctx context.Context, id, productID string, delta int) (*Session, error) {
	return s.mutate(ctx, id, "adjust", func(sess *Session) error {
		sess.Cart.AdjustQuantity(productID, delta)
		return nil
	})
}

// RemoveItem deletes a line.
func (s *Service) RemoveItem(ctx context.Context, id, productID string) (*Session, error) {
	return s.mutate(ctx, id, "remove", func(sess *Session) error {
		sess.Cart.Remove(productID)
		return nil
	})
}

// ClearCart empties the cart and resets the surcharge to zero.
func (s *Service) ClearCart(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, "clear", func(sess *Session) error {
		sess.ClearCart()
		return nil
	})
}

// SetSurcharge parses and applies a percentage. Non-numeric or negative
// input is rejected and the session is left untouched.
func (s *Service) SetSurcharge(ctx context.Context, id, raw string) (*Session, error) {
	percent, err := ParseSurcharge(raw)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "surcharge", func(sess *Session) error {
		sess.SurchargePercent = percent
		return nil
	})
}

// SetCurrency selects the display currency. Codes outside the rate table are
// accepted and priced at multiplier 1.
func (s *Service) SetCurrency(ctx context.Context, id, code string) (*Session, error) {
	code = currency.NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCurrency
	}
	return s.mutate(ctx, id, "currency", func(sess *Session) error {
		sess.Currency = code
		return nil
	})
}

// Quote prices a session against the current rate table.
func (s *Service) Quote(ctx context.Context, id string) (Quote, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	return s.QuoteFor(sess), nil
}

// QuoteFor prices an already loaded session.
func (s *Service) QuoteFor(sess *Session) Quote {
	table := currency.FallbackTable(time.Time{})
	if s.Rates != nil {
		table = s.Rates.Current()
	}
	meta := RatesMeta{IsFallback: table.IsFallback, Source: table.Source}
	if !table.ResolvedAt.IsZero() {
		at := table.ResolvedAt.UTC()
		meta.ResolvedAt = &at
	}
	return Quote{
		Session: sess,
		Totals:  pricing.Compute(pricing.ItemsFromLines(sess.Cart.Lines()), sess.SurchargePercent, sess.Currency, table),
		Rates:   meta,
	}
}

func (s *Service) mutate(ctx context.Context, id, op string, fn func(*Session) error) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	var out *Session
	err := s.Locker.WithLock(ctx, lockKey(id), func(ctx context.Context) error {
		sess, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.now()
		if err := s.Store.Save(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	recordMutation(op, err)
	if err != nil {
		s.Logger.Debug().Err(err).Str("session_id", id).Str("op", op).Msg("session_mutation_failed")
		return nil, err
	}
	return out, nil
}

// MaxSurchargePercent is the largest accepted surcharge percentage.
var MaxSurchargePercent = decimal.NewFromInt(1000)

// ParseSurcharge reads a percentage between 0 and MaxSurchargePercent with at
// most 6 fractional digits. Anything else is rejected.
func ParseSurcharge(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidSurcharge
	}
	percent, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidSurcharge, raw)
	}
	// Bound the representation before comparing values.
	if percent.Exponent() > 3 || percent.Exponent() < -6 || percent.NumDigits() > 10 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidSurcharge, raw)
	}
	if percent.IsNegative() || percent.GreaterThan(MaxSurchargePercent) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidSurcharge, percent)
	}
	return percent, nil
}

// AppError maps session-domain errors onto HTTP errors.
func AppError(err error) *common.AppError {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "session not found", http.StatusNotFound, err)
	case errors.Is(err, cart.ErrInvalidQuantity):
		return common.NewAppError("INVALID_QUANTITY", cart.ErrInvalidQuantity.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrInvalidSurcharge):
		return common.NewAppError("INVALID_SURCHARGE", ErrInvalidSurcharge.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrInvalidCurrency):
		return common.NewAppError("INVALID_CURRENCY", ErrInvalidCurrency.Error(), http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.NewAppError("SESSION_BUSY", "session is busy, retry", http.StatusConflict, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}

func lockKey(id string) string { return "session:" + id }

func recordMutation(op string, err error) {
	if obs.CartMutationsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.CartMutationsTotal.WithLabelValues(op, result).Inc()
}
