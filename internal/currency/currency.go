package currency

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCode is the currency every catalog price and cart total is stored in.
const BaseCode = "INR"

// Definition describes a supported currency and its static fallback multiplier.
type Definition struct {
	Code    string
	Symbol  string
	Name    string
	Default decimal.Decimal
}

var supported = []Definition{
	{Code: BaseCode, Symbol: "₹", Name: "Indian Rupee", Default: decimal.NewFromInt(1)},
	{Code: "USD", Symbol: "$", Name: "US Dollar", Default: decimal.RequireFromString("0.012")},
	{Code: "EUR", Symbol: "€", Name: "Euro", Default: decimal.RequireFromString("0.011")},
	{Code: "GBP", Symbol: "£", Name: "British Pound", Default: decimal.RequireFromString("0.0095")},
	{Code: "JPY", Symbol: "¥", Name: "Japanese Yen", Default: decimal.RequireFromString("1.78")},
	{Code: "AUD", Symbol: "A$", Name: "Australian Dollar", Default: decimal.RequireFromString("0.018")},
	{Code: "CAD", Symbol: "C$", Name: "Canadian Dollar", Default: decimal.RequireFromString("0.016")},
	{Code: "CHF", Symbol: "CHF", Name: "Swiss Franc", Default: decimal.RequireFromString("0.011")},
	{Code: "CNY", Symbol: "¥", Name: "Chinese Yuan", Default: decimal.RequireFromString("0.087")},
	{Code: "AED", Symbol: "AED", Name: "UAE Dirham", Default: decimal.RequireFromString("0.044")},
	{Code: "SAR", Symbol: "SAR", Name: "Saudi Riyal", Default: decimal.RequireFromString("0.045")},
	{Code: "SGD", Symbol: "S$", Name: "Singapore Dollar", Default: decimal.RequireFromString("0.016")},
}

// Supported returns the supported currencies in display order. The base
// currency is always first.
func Supported() []Definition {
	out := make([]Definition, len(supported))
	copy(out, supported)
	return out
}

// Base returns the base currency definition.
func Base() Definition {
	return supported[0]
}

// Lookup finds a supported currency definition by code (case-insensitive).
func Lookup(code string) (Definition, bool) {
	code = NormalizeCode(code)
	for _, def := range supported {
		if def.Code == code {
			return def, true
		}
	}
	return Definition{}, false
}

// NormalizeCode trims and upper-cases a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Rate is a resolved multiplier for a single currency.
type Rate struct {
	Code         string          `json:"code"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	UnitsPerBase decimal.Decimal `json:"unitsPerBase"`
}

// Table is a complete, immutable set of rates. Tables are replaced wholesale
// and never patched after construction.
type Table struct {
	Rates      map[string]Rate
	ResolvedAt time.Time
	IsFallback bool
	Source     string
}

const (
	maxRateDigits      = 40
	minRateExponent    = -40
	maxRateIntegerDigs = 12
	minRateIntegerDigs = -19
)

// UsableRate reports whether v can serve as a multiplier: positive, at most
// 40 significant digits, at least 1e-20 and below 1e12. The bounds are
// checked on the representation so huge exponents are never expanded.
func UsableRate(v decimal.Decimal) bool {
	if !v.IsPositive() {
		return false
	}
	digits := v.NumDigits()
	if digits > maxRateDigits || v.Exponent() < minRateExponent {
		return false
	}
	magnitude := digits + int(v.Exponent())
	return magnitude <= maxRateIntegerDigs && magnitude >= minRateIntegerDigs
}

// NewTable builds a table for every supported currency. Live multipliers
// override the defaults when present and usable; the base currency is
// always pinned to 1.
func NewTable(live map[string]decimal.Decimal, resolvedAt time.Time, source string) Table {
	rates := make(map[string]Rate, len(supported))
	for _, def := range supported {
		mult := def.Default
		if def.Code == BaseCode {
			mult = decimal.NewFromInt(1)
		} else if v, ok := live[def.Code]; ok && UsableRate(v) {
			mult = v
		}
		rates[def.Code] = Rate{Code: def.Code, Symbol: def.Symbol, Name: def.Name, UnitsPerBase: mult}
	}
	return Table{Rates: rates, ResolvedAt: resolvedAt, Source: source}
}

// FallbackTable builds the static default table used when no live source answered.
func FallbackTable(resolvedAt time.Time) Table {
	t := NewTable(nil, resolvedAt, "")
	t.IsFallback = true
	return t
}

// Lookup returns the rate for code if the table carries it.
func (t Table) Lookup(code string) (Rate, bool) {
	r, ok := t.Rates[NormalizeCode(code)]
	return r, ok
}

// Multiplier returns units-per-base for code, or 1 when the code is unknown.
func (t Table) Multiplier(code string) decimal.Decimal {
	if r, ok := t.Lookup(code); ok {
		return r.UnitsPerBase
	}
	return decimal.NewFromInt(1)
}

// Ordered returns the table rates in supported-currency order followed by any
// extra codes in lexical order.
func (t Table) Ordered() []Rate {
	out := make([]Rate, 0, len(t.Rates))
	seen := make(map[string]struct{}, len(t.Rates))
	for _, def := range supported {
		if r, ok := t.Rates[def.Code]; ok {
			out = append(out, r)
			seen[def.Code] = struct{}{}
		}
	}
	var extra []string
	for code := range t.Rates {
		if _, ok := seen[code]; !ok {
			extra = append(extra, code)
		}
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		for _, code := range extra {
			out = append(out, t.Rates[code])
		}
	}
	return out
}
