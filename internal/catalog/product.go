package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultName        = "Unknown Product"
	defaultComposition = "No Composition Info"
	defaultPacking     = "No Packaging Info"
)

// Product is an immutable catalog entry priced in the base currency.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Composition string          `json:"composition"`
	Packing     string          `json:"packing"`
	Price       decimal.Decimal `json:"price"`
	PackCount   int             `json:"packCount"`
}

// LoadFile reads a catalog file from disk.
func LoadFile(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	products, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return products, nil
}

// Decode reads a JSON array of raw product records. Missing or malformed
// fields are replaced by defaults, and ids are made unique.
func Decode(r io.Reader) ([]Product, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		p := normalizeRecord(rec)
		if _, dup := seen[p.ID]; dup || p.ID == "" {
			p.ID = uuid.NewString()
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func normalizeRecord(rec map[string]any) Product {
	p := Product{
		ID:          textField(rec["id"]),
		Name:        textField(rec["BRAND_NAME"]),
		Composition: textField(rec["COMPOSITION"]),
		Packing:     textField(rec["packing"]),
		Price:       decimalField(rec["price"]),
		PackCount:   int(decimalField(rec["count"]).IntPart()),
	}
	if p.Name == "" {
		p.Name = defaultName
	}
	if p.Composition == "" {
		p.Composition = defaultComposition
	}
	if p.Packing == "" {
		p.Packing = defaultPacking
	}
	if p.Price.IsNegative() {
		p.Price = decimal.Zero
	}
	if p.PackCount <= 0 {
		p.PackCount = 1
	}
	return p
}

func textField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func decimalField(v any) decimal.Decimal {
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(t)
	default:
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
