package rates

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Shape recognises one upstream payload layout and extracts a flat
// code -> units-per-base mapping from it.
type Shape struct {
	Name string
	// Detect reports whether the top-level document matches this layout.
	Detect func(doc map[string]json.RawMessage) bool
	// Extract returns the rate map. Keys keep the upstream casing.
	Extract func(doc map[string]json.RawMessage) (map[string]decimal.Decimal, error)
}

// DefaultShapes returns the known layouts in probe priority: a top-level
// "rates" object, a top-level "conversion_rates" object, then an object keyed
// by the lower-case base currency code.
func DefaultShapes(baseCode string) []Shape {
	return []Shape{
		objectShape("rates", "rates"),
		objectShape("conversion_rates", "conversion_rates"),
		objectShape("base_keyed", strings.ToLower(baseCode)),
	}
}

func objectShape(name, key string) Shape {
	return Shape{
		Name: name,
		Detect: func(doc map[string]json.RawMessage) bool {
			raw, ok := doc[key]
			return ok && isObject(raw)
		},
		Extract: func(doc map[string]json.RawMessage) (map[string]decimal.Decimal, error) {
			return numericEntries(doc[key])
		},
	}
}

// normalize probes shapes in order and returns the first extraction.
func normalize(body []byte, shapes []Shape) (map[string]decimal.Decimal, string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", err
	}
	for _, shape := range shapes {
		if shape.Detect == nil || shape.Extract == nil {
			continue
		}
		if !shape.Detect(doc) {
			continue
		}
		out, err := shape.Extract(doc)
		if err != nil {
			return nil, shape.Name, err
		}
		return out, shape.Name, nil
	}
	return nil, "", errUnknownShape
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// numericEntries decodes an object and keeps only numeric members.
func numericEntries(raw json.RawMessage) (map[string]decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var members map[string]any
	if err := dec.Decode(&members); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(members))
	for code, v := range members {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(num.String())
		if err != nil {
			continue
		}
		out[code] = d
	}
	return out, nil
}
