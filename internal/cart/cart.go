package cart

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/noah-isme/pharma-quote/internal/catalog"
)

// MaxQuantity caps the quantity of a single line.
const MaxQuantity = 1_000_000

// ErrInvalidQuantity is returned by the direct-quantity add path when the
// requested quantity is below 1 or would push the line past MaxQuantity.
var ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 1000000")

// Line is one product in the cart. Product is a snapshot taken when the
// line was created.
type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Cart is an insertion-ordered set of lines keyed by product id. No two
// lines share a product id and no stored line has a quantity below 1.
// A Cart is not safe for concurrent mutation.
type Cart struct {
	order []string
	lines map[string]*Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: make(map[string]*Line)}
}

func (c *Cart) init() {
	if c.lines == nil {
		c.lines = make(map[string]*Line)
	}
}

// AddOrIncrement adds quantity of product, merging into an existing line.
// Quantities below 1 are treated as 1 and the line saturates at MaxQuantity.
func (c *Cart) AddOrIncrement(product catalog.Product, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	c.add(product, quantity)
}

// AddExact adds exactly quantity of product. Quantities below 1, or that
// would take the line past MaxQuantity, are rejected and the cart is left
// untouched.
func (c *Cart) AddExact(product catalog.Product, quantity int) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if line, ok := c.lines[product.ID]; ok && quantity > MaxQuantity-line.Quantity {
		return ErrInvalidQuantity
	}
	c.add(product, quantity)
	return nil
}

func (c *Cart) add(product catalog.Product, quantity int) {
	c.init()
	quantity = min(quantity, MaxQuantity)
	if line, ok := c.lines[product.ID]; ok {
		line.Quantity = saturatingAdd(line.Quantity, quantity)
		return
	}
	c.lines[product.ID] = &Line{Product: product, Quantity: quantity}
	c.order = append(c.order, product.ID)
}

// SetQuantity replaces the quantity of an existing line. Zero removes the
// line and negative values are ignored. Values above MaxQuantity are clamped.
// Unknown ids are never created.
func (c *Cart) SetQuantity(id string, quantity int) {
	if quantity < 0 {
		return
	}
	line, ok := c.lines[id]
	if !ok {
		return
	}
	if quantity == 0 {
		c.Remove(id)
		return
	}
	line.Quantity = min(quantity, MaxQuantity)
}

// AdjustQuantity adds delta to an existing line, removing it when the result
// is zero or below. The result saturates at MaxQuantity.
func (c *Cart) AdjustQuantity(id string, delta int) {
	line, ok := c.lines[id]
	if !ok {
		return
	}
	if delta <= -line.Quantity {
		c.Remove(id)
		return
	}
	line.Quantity = saturatingAdd(line.Quantity, delta)
}

// saturatingAdd adds delta to a quantity in [1, MaxQuantity] and caps the
// result at MaxQuantity.
func saturatingAdd(quantity, delta int) int {
	if delta > MaxQuantity-quantity {
		return MaxQuantity
	}
	return quantity + delta
}

// Remove deletes the line for id if present.
func (c *Cart) Remove(id string) {
	if _, ok := c.lines[id]; !ok {
		return
	}
	delete(c.lines, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.order = nil
	c.lines = make(map[string]*Line)
}

// TotalItemCount sums quantities across all lines.
func (c *Cart) TotalItemCount() int {
	total := 0
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int { return len(c.order) }

// Line returns a copy of the line for id.
func (c *Cart) Line(id string) (Line, bool) {
	line, ok := c.lines[id]
	if !ok {
		return Line{}, false
	}
	return *line, true
}

// Lines returns copies of all lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

// MarshalJSON encodes the cart as an ordered array of lines.
func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Lines())
}

// UnmarshalJSON rebuilds the cart from an ordered array of lines. Lines are
// replayed through the add path so the cart invariants hold for any input.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	c.Clear()
	for _, line := range lines {
		if strings.TrimSpace(line.Product.ID) == "" || line.Quantity < 1 {
			continue
		}
		c.add(line.Product, line.Quantity)
	}
	return nil
}
