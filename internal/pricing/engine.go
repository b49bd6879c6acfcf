package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pharma-quote/internal/cart"
	"github.com/noah-isme/pharma-quote/internal/currency"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Item describes a line item used for pricing calculation. UnitPrice is in
// the base currency.
type Item struct {
	ProductID string
	Name      string
	Qty       int
	UnitPrice decimal.Decimal
}

// ItemsFromLines converts cart lines into pricing items, preserving order.
func ItemsFromLines(lines []cart.Line) []Item {
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, Item{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Qty:       l.Quantity,
			UnitPrice: l.Product.Price,
		})
	}
	return items
}

// LineTotal is one priced line in both base and selected currency.
type LineTotal struct {
	ProductID     string          `json:"productId"`
	Name          string          `json:"name"`
	Qty           int             `json:"qty"`
	BaseUnitPrice decimal.Decimal `json:"baseUnitPrice"`
	BaseLineTotal decimal.Decimal `json:"baseLineTotal"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	LineTotal     decimal.Decimal `json:"lineTotal"`
	Display       LineDisplay     `json:"display"`
}

// LineDisplay carries formatted per-line amounts.
type LineDisplay struct {
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

// Display carries formatted totals in the selected currency.
type Display struct {
	Subtotal   string `json:"subtotal"`
	Surcharge  string `json:"surcharge"`
	GrandTotal string `json:"grandTotal"`
	Rate       string `json:"rate"`
}

// Totals aggregates computed pricing components. Base amounts are exact;
// converted amounts use the same multiplier throughout.
type Totals struct {
	CurrencyCode     string          `json:"currency"`
	Symbol           string          `json:"symbol"`
	Rate             decimal.Decimal `json:"rate"`
	KnownCurrency    bool            `json:"knownCurrency"`
	SurchargePercent decimal.Decimal `json:"surchargePercent"`
	HasSurcharge     bool            `json:"hasSurcharge"`
	ItemCount        int             `json:"itemCount"`

	BaseSubtotal    decimal.Decimal `json:"baseSubtotal"`
	SurchargeAmount decimal.Decimal `json:"surchargeAmount"`
	BaseGrandTotal  decimal.Decimal `json:"baseGrandTotal"`

	Subtotal   decimal.Decimal `json:"subtotal"`
	Surcharge  decimal.Decimal `json:"surcharge"`
	GrandTotal decimal.Decimal `json:"grandTotal"`

	Lines   []LineTotal `json:"lines"`
	Display Display     `json:"display"`
}

// Compute prices items with a surcharge percentage and converts every amount
// into code using table. An unknown code prices at multiplier 1 and is shown
// with the base currency symbol. Negative percentages count as zero.
func Compute(items []Item, surchargePercent decimal.Decimal, code string, table currency.Table) Totals {
	code = currency.NormalizeCode(code)
	if code == "" {
		code = currency.BaseCode
	}
	if surchargePercent.IsNegative() {
		surchargePercent = decimal.Zero
	}

	rate, known := table.Lookup(code)
	multiplier := one
	symbol := currency.Base().Symbol
	if known {
		multiplier = rate.UnitsPerBase
		symbol = rate.Symbol
	}

	t := Totals{
		CurrencyCode:     code,
		Symbol:           symbol,
		Rate:             multiplier,
		KnownCurrency:    known,
		SurchargePercent: surchargePercent,
		HasSurcharge:     surchargePercent.IsPositive(),
		BaseSubtotal:     decimal.Zero,
		Lines:            make([]LineTotal, 0, len(items)),
	}
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		lineBase := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty)))
		unit := it.UnitPrice.Mul(multiplier)
		line := lineBase.Mul(multiplier)
		t.BaseSubtotal = t.BaseSubtotal.Add(lineBase)
		t.ItemCount += it.Qty
		t.Lines = append(t.Lines, LineTotal{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Qty:           it.Qty,
			BaseUnitPrice: it.UnitPrice,
			BaseLineTotal: lineBase,
			UnitPrice:     unit,
			LineTotal:     line,
			Display:       LineDisplay{UnitPrice: Format(symbol, unit), LineTotal: Format(symbol, line)},
		})
	}

	t.SurchargeAmount = t.BaseSubtotal.Mul(surchargePercent).Div(hundred)
	t.BaseGrandTotal = t.BaseSubtotal.Add(t.SurchargeAmount)
	t.Subtotal = t.BaseSubtotal.Mul(multiplier)
	t.Surcharge = t.SurchargeAmount.Mul(multiplier)
	t.GrandTotal = t.BaseGrandTotal.Mul(multiplier)
	t.Display = Display{
		Subtotal:   Format(symbol, t.Subtotal),
		Surcharge:  Format(symbol, t.Surcharge),
		GrandTotal: Format(symbol, t.GrandTotal),
		Rate:       "1 " + currency.BaseCode + " = " + multiplier.StringFixed(6) + " " + code,
	}
	return t
}
