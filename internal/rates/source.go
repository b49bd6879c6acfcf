package rates

import (
	"fmt"
	"net/url"
	"strings"
)

// Source is one upstream provider of exchange rates.
type Source struct {
	Name string
	URL  string
	// Shapes overrides the payload layouts probed for this source.
	Shapes []Shape
}

// DefaultSources lists the public INR rate endpoints in priority order.
func DefaultSources() []Source {
	return []Source{
		{Name: "exchangerate-api", URL: "https://api.exchangerate-api.com/v4/latest/INR"},
		{Name: "frankfurter", URL: "https://api.frankfurter.app/latest?from=INR"},
		{Name: "currency-api", URL: "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/inr.json"},
	}
}

// ParseSources reads "name=url" entries. A bare URL is named after its host.
func ParseSources(entries []string) ([]Source, error) {
	out := make([]Source, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, raw, found := strings.Cut(entry, "=")
		if !found || strings.Contains(name, "/") {
			name, raw = "", entry
		}
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("rates: invalid source url %q", raw)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = u.Hostname()
		}
		out = append(out, Source{Name: name, URL: u.String()})
	}
	return out, nil
}
