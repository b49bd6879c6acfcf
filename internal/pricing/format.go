package pricing

import "github.com/shopspring/decimal"

// FormatAmount renders amount with 4 fractional digits when it lies strictly
// between 0 and 1, and with 2 otherwise.
func FormatAmount(amount decimal.Decimal) string {
	if amount.IsPositive() && amount.LessThan(one) {
		return amount.StringFixed(4)
	}
	return amount.StringFixed(2)
}

// Format prefixes the formatted amount with a currency symbol.
func Format(symbol string, amount decimal.Decimal) string {
	return symbol + " " + FormatAmount(amount)
}
