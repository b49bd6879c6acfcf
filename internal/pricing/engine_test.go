package pricing_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/cart"
	"github.com/noah-isme/pharma-quote/internal/catalog"
	"github.com/noah-isme/pharma-quote/internal/currency"
	"github.com/noah-isme/pharma-quote/internal/pricing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func liveTable(usd string) currency.Table {
	return currency.NewTable(map[string]decimal.Decimal{"USD": d(usd)}, time.Now(), "test")
}

func TestComputeEndToEnd(t *testing.T) {
	items := []pricing.Item{
		{ProductID: "a", Qty: 2, UnitPrice: d("100")},
		{ProductID: "b", Qty: 1, UnitPrice: d("50")},
	}
	totals := pricing.Compute(items, d("10"), "USD", liveTable("0.012"))

	require.True(t, totals.BaseSubtotal.Equal(d("250")))
	require.True(t, totals.SurchargeAmount.Equal(d("25")))
	require.True(t, totals.BaseGrandTotal.Equal(d("275")))
	require.True(t, totals.GrandTotal.Equal(d("3.3")), totals.GrandTotal.String())
	require.True(t, totals.Subtotal.Equal(d("3")))
	require.True(t, totals.Surcharge.Equal(d("0.3")))
	require.True(t, totals.HasSurcharge)
	require.True(t, totals.KnownCurrency)
	require.Equal(t, 3, totals.ItemCount)

	require.Equal(t, "$ 3.30", totals.Display.GrandTotal)
	require.Equal(t, "$ 0.3000", totals.Display.Surcharge)
	require.Equal(t, "1 INR = 0.012000 USD", totals.Display.Rate)

	require.Len(t, totals.Lines, 2)
	require.True(t, totals.Lines[0].BaseLineTotal.Equal(d("200")))
	require.Equal(t, "$ 1.20", totals.Lines[0].Display.UnitPrice)
	require.Equal(t, "$ 2.40", totals.Lines[0].Display.LineTotal)
	require.Equal(t, "$ 0.6000", totals.Lines[1].Display.LineTotal)
}

func TestComputeEmptyCart(t *testing.T) {
	totals := pricing.Compute(nil, d("15"), "EUR", currency.FallbackTable(time.Time{}))
	require.True(t, totals.BaseSubtotal.IsZero())
	require.True(t, totals.SurchargeAmount.IsZero())
	require.True(t, totals.GrandTotal.IsZero())
	require.True(t, totals.HasSurcharge)
	require.Empty(t, totals.Lines)
	require.Equal(t, "€ 0.00", totals.Display.GrandTotal)
}

func TestComputeZeroSurchargeIsDistinguishable(t *testing.T) {
	items := []pricing.Item{{ProductID: "a", Qty: 3, UnitPrice: d("19.99")}}
	totals := pricing.Compute(items, decimal.Zero, "INR", currency.FallbackTable(time.Time{}))
	require.False(t, totals.HasSurcharge)
	require.True(t, totals.BaseGrandTotal.Equal(totals.BaseSubtotal))
	require.Equal(t, "₹ 59.97", totals.Display.GrandTotal)

	negative := pricing.Compute(items, d("-5"), "INR", currency.FallbackTable(time.Time{}))
	require.False(t, negative.HasSurcharge)
	require.True(t, negative.BaseGrandTotal.Equal(negative.BaseSubtotal))
}

func TestComputeUnknownCurrencyUsesMultiplierOne(t *testing.T) {
	items := []pricing.Item{{ProductID: "a", Qty: 1, UnitPrice: d("80")}}
	totals := pricing.Compute(items, d("0"), "xyz", liveTable("0.012"))
	require.Equal(t, "XYZ", totals.CurrencyCode)
	require.False(t, totals.KnownCurrency)
	require.True(t, totals.Rate.Equal(decimal.NewFromInt(1)))
	require.True(t, totals.GrandTotal.Equal(d("80")))
	require.Equal(t, "₹ 80.00", totals.Display.GrandTotal)
}

func TestComputeSkipsNonPositiveQuantities(t *testing.T) {
	items := []pricing.Item{{ProductID: "a", Qty: 0, UnitPrice: d("10")}, {ProductID: "b", Qty: 1, UnitPrice: d("5")}}
	totals := pricing.Compute(items, d("0"), "", currency.FallbackTable(time.Time{}))
	require.Equal(t, "INR", totals.CurrencyCode)
	require.Len(t, totals.Lines, 1)
	require.True(t, totals.BaseSubtotal.Equal(d("5")))
}

func TestComputeGrandTotalProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	table := currency.FallbackTable(time.Time{})
	for i := 0; i < 200; i++ {
		var items []pricing.Item
		n := rng.Intn(6)
		for j := 0; j < n; j++ {
			price := decimal.New(int64(rng.Intn(100000)), -2)
			items = append(items, pricing.Item{ProductID: "p", Qty: rng.Intn(10) + 1, UnitPrice: price})
		}
		percent := decimal.New(int64(rng.Intn(5000)), -2)
		totals := pricing.Compute(items, percent, "GBP", table)

		want := totals.BaseSubtotal.Mul(decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100))))
		require.True(t, totals.BaseGrandTotal.Equal(want), "%s vs %s", totals.BaseGrandTotal, want)

		flat := pricing.Compute(items, decimal.Zero, "GBP", table)
		require.True(t, flat.BaseGrandTotal.Equal(flat.BaseSubtotal))
		require.True(t, totals.GrandTotal.Equal(totals.BaseGrandTotal.Mul(d("0.0095"))))
	}
}

func TestItemsFromLines(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(catalog.Product{ID: "x", Name: "Pan 40", Price: d("155")}, 2)
	c.AddOrIncrement(catalog.Product{ID: "y", Name: "Dolo 650", Price: d("33.6")}, 1)

	items := pricing.ItemsFromLines(c.Lines())
	require.Len(t, items, 2)
	require.Equal(t, "x", items[0].ProductID)
	require.Equal(t, 2, items[0].Qty)

	totals := pricing.Compute(items, decimal.Zero, "INR", currency.FallbackTable(time.Time{}))
	require.True(t, totals.BaseSubtotal.Equal(d("343.6")))
}
