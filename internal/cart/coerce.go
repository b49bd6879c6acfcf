package cart

import (
	"errors"
	"strconv"
	"strings"
)

// CoerceAddQuantity maps raw add input to a quantity. Non-numeric input and
// values below 1 become 1; values above MaxQuantity become MaxQuantity.
func CoerceAddQuantity(raw string) int {
	n, ok := leadingInt(raw)
	if !ok || n < 1 {
		return 1
	}
	return min(n, MaxQuantity)
}

// CoerceSetQuantity maps raw set input to a quantity. Non-numeric input
// becomes 0. Out of range values pass through so SetQuantity and AddExact
// can apply their own bounds.
func CoerceSetQuantity(raw string) int {
	n, ok := leadingInt(raw)
	if !ok {
		return 0
	}
	return n
}

// leadingInt parses an optional sign followed by the leading run of decimal
// digits, ignoring anything after it ("12abc" is 12, "3.9" is 3). Out of
// range values saturate at the int limits.
func leadingInt(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		return n, true
	}
	if err != nil {
		return 0, false
	}
	return n, true
}
