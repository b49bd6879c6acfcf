package cart_test

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/cart"
	"github.com/noah-isme/pharma-quote/internal/catalog"
)

func product(id, price string) catalog.Product {
	return catalog.Product{ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price), PackCount: 1}
}

func ids(lines []cart.Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Product.ID)
	}
	return out
}

func TestAddSameProductMergesLines(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("a", "10"), 2)
	c.AddOrIncrement(product("a", "10"), 3)

	require.Equal(t, 1, c.Len())
	line, ok := c.Line("a")
	require.True(t, ok)
	require.Equal(t, 5, line.Quantity)
}

func TestAddOrIncrementTreatsInvalidAsOne(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("a", "10"), 0)
	c.AddOrIncrement(product("b", "10"), -4)
	require.Equal(t, 2, c.TotalItemCount())
}

func TestAddExactRejectsBelowOne(t *testing.T) {
	c := cart.New()
	require.ErrorIs(t, c.AddExact(product("a", "10"), 0), cart.ErrInvalidQuantity)
	require.ErrorIs(t, c.AddExact(product("a", "10"), -1), cart.ErrInvalidQuantity)
	require.Zero(t, c.Len())

	require.NoError(t, c.AddExact(product("a", "10"), 4))
	require.Equal(t, 4, c.TotalItemCount())
}

func TestQuantitiesAreCappedAtMax(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("a", "10"), cart.CoerceAddQuantity("9223372036854775807"))
	c.AddOrIncrement(product("a", "10"), 1)
	line, ok := c.Line("a")
	require.True(t, ok)
	require.Equal(t, cart.MaxQuantity, line.Quantity)
	require.Equal(t, cart.MaxQuantity, c.TotalItemCount())

	c.AdjustQuantity("a", math.MaxInt)
	line, _ = c.Line("a")
	require.Equal(t, cart.MaxQuantity, line.Quantity)

	c.SetQuantity("a", math.MaxInt)
	line, _ = c.Line("a")
	require.Equal(t, cart.MaxQuantity, line.Quantity)

	c.AdjustQuantity("a", -math.MaxInt)
	require.Zero(t, c.Len())
	require.Zero(t, c.TotalItemCount())
}

func TestAddExactRejectsAboveMax(t *testing.T) {
	c := cart.New()
	require.ErrorIs(t, c.AddExact(product("a", "10"), cart.MaxQuantity+1), cart.ErrInvalidQuantity)
	require.Zero(t, c.Len())

	require.NoError(t, c.AddExact(product("a", "10"), cart.MaxQuantity-1))
	require.ErrorIs(t, c.AddExact(product("a", "10"), 2), cart.ErrInvalidQuantity)
	line, _ := c.Line("a")
	require.Equal(t, cart.MaxQuantity-1, line.Quantity)

	require.NoError(t, c.AddExact(product("a", "10"), 1))
	require.Equal(t, cart.MaxQuantity, c.TotalItemCount())
}

func TestAddKeepsFirstSnapshot(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("a", "10"), 1)
	c.AddOrIncrement(product("a", "99"), 1)
	line, _ := c.Line("a")
	require.True(t, line.Product.Price.Equal(decimal.NewFromInt(10)))
}

func TestSetQuantity(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("a", "10"), 2)

	c.SetQuantity("a", 7)
	line, _ := c.Line("a")
	require.Equal(t, 7, line.Quantity)

	c.SetQuantity("a", -3)
	line, _ = c.Line("a")
	require.Equal(t, 7, line.Quantity)

	c.SetQuantity("missing", 5)
	require.Equal(t, 1, c.Len())
	_, ok := c.Line("missing")
	require.False(t, ok)

	c.SetQuantity("a", 0)
	require.Zero(t, c.Len())
}

func TestAdjustQuantityFloorsAtZero(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("a", "10"), 2)
	c.AdjustQuantity("a", 3)
	line, _ := c.Line("a")
	require.Equal(t, 5, line.Quantity)

	c.AdjustQuantity("a", -10)
	require.Zero(t, c.Len())

	c.AdjustQuantity("missing", 1)
	require.Zero(t, c.Len())
}

func TestRemoveAndClearKeepOrder(t *testing.T) {
	c := cart.New()
	for _, id := range []string{"a", "b", "c", "d"} {
		c.AddOrIncrement(product(id, "1"), 1)
	}
	c.Remove("b")
	c.Remove("zzz")
	require.Equal(t, []string{"a", "c", "d"}, ids(c.Lines()))

	c.AddOrIncrement(product("b", "1"), 1)
	require.Equal(t, []string{"a", "c", "d", "b"}, ids(c.Lines()))

	c.Clear()
	require.Zero(t, c.Len())
	require.Zero(t, c.TotalItemCount())
}

func TestZeroValueCartIsUsable(t *testing.T) {
	var c cart.Cart
	c.SetQuantity("a", 1)
	c.Remove("a")
	c.AddOrIncrement(product("a", "1"), 1)
	require.Equal(t, 1, c.Len())
}

func TestTotalItemCountMatchesRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := cart.New()
	expected := map[string]int{}
	pool := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 2000; i++ {
		id := pool[rng.Intn(len(pool))]
		switch rng.Intn(5) {
		case 0:
			q := rng.Intn(6) - 1
			c.AddOrIncrement(product(id, "1"), q)
			expected[id] += max(q, 1)
		case 1:
			q := rng.Intn(5) - 1
			c.SetQuantity(id, q)
			if _, ok := expected[id]; ok && q >= 0 {
				expected[id] = q
			}
		case 2:
			d := rng.Intn(7) - 4
			c.AdjustQuantity(id, d)
			if _, ok := expected[id]; ok {
				expected[id] += d
			}
		case 3:
			c.Remove(id)
			delete(expected, id)
		case 4:
			if err := c.AddExact(product(id, "1"), rng.Intn(3)); err == nil {
				line, _ := c.Line(id)
				expected[id] = line.Quantity
			}
		}
		for k, v := range expected {
			if v <= 0 {
				delete(expected, k)
			}
		}

		sum := 0
		for _, v := range expected {
			sum += v
		}
		require.Equal(t, sum, c.TotalItemCount())
		require.Equal(t, len(expected), c.Len())
		for _, line := range c.Lines() {
			require.Positive(t, line.Quantity)
		}
	}
}

func TestJSONPreservesOrder(t *testing.T) {
	c := cart.New()
	c.AddOrIncrement(product("z", "1.50"), 2)
	c.AddOrIncrement(product("a", "3"), 1)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back cart.Cart
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, []string{"z", "a"}, ids(back.Lines()))
	line, _ := back.Line("z")
	require.Equal(t, 2, line.Quantity)
	require.True(t, line.Product.Price.Equal(decimal.RequireFromString("1.5")))
}

func TestUnmarshalEnforcesInvariants(t *testing.T) {
	var c cart.Cart
	err := json.Unmarshal([]byte(`[
		{"product":{"id":"a","price":"1"},"quantity":2},
		{"product":{"id":"a","price":"1"},"quantity":3},
		{"product":{"id":"b","price":"1"},"quantity":0},
		{"product":{"id":"","price":"1"},"quantity":1}
	]`), &c)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	require.Equal(t, 5, c.TotalItemCount())
}
