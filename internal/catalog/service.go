package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/pharma-quote/internal/common"
)

// ErrProductNotFound is returned when an id does not match any product.
var ErrProductNotFound = errors.New("catalog: product not found")

// Sort orders understood by Search.
const (
	SortName      = "name"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
)

// Service answers catalog queries over an in-memory product list.
type Service struct {
	products     []Product
	byID         map[string]int
	nameOrder    []int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Products     []Product
	Language     language.Tag
	DefaultLimit int
	MaxLimit     int
}

// SearchParams captures filters for product search.
type SearchParams struct {
	Query string
	All   bool
	Sort  string
	Page  int
	Limit int
}

// SearchResult contains a page of products and totals.
type SearchResult struct {
	Items       []Product
	Total       int
	Page        int
	Limit       int
	CatalogSize int
}

// NewService indexes products and precomputes the locale-aware name order.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Products == nil {
		return nil, errors.New("catalog: products are required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 50
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 500
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	tag := cfg.Language
	if tag == language.Und {
		tag = language.English
	}

	s := &Service{
		products:     cfg.Products,
		byID:         make(map[string]int, len(cfg.Products)),
		nameOrder:    make([]int, len(cfg.Products)),
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
	for i, p := range cfg.Products {
		s.byID[p.ID] = i
		s.nameOrder[i] = i
	}
	col := collate.New(tag, collate.IgnoreCase)
	slices.SortStableFunc(s.nameOrder, func(a, b int) int {
		return col.CompareString(s.products[a].Name, s.products[b].Name)
	})
	return s, nil
}

// Count returns the catalog size.
func (s *Service) Count() int { return len(s.products) }

// ParseSearchParams normalises raw query values.
func (s *Service) ParseSearchParams(values url.Values) (SearchParams, error) {
	params := SearchParams{
		Query: strings.TrimSpace(values.Get("q")),
		Page:  1,
		Limit: s.defaultLimit,
	}
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = min(l, s.maxLimit)
	}
	if v := strings.TrimSpace(values.Get("all")); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return params, badRequest("all", "all must be true or false", err)
		}
		params.All = b
	}
	sort, err := normalizeSort(values.Get("sort"))
	if err != nil {
		return params, badRequest("sort", "sort must be one of name, price-low, price-high", err)
	}
	params.Sort = sort
	return params, nil
}

// Search filters by case-insensitive name substring. An empty query yields
// nothing unless All is set, in which case the whole catalog is listed.
func (s *Service) Search(_ context.Context, params SearchParams) SearchResult {
	query := strings.ToLower(strings.TrimSpace(params.Query))
	var matched []Product
	if query != "" || params.All {
		matched = make([]Product, 0, len(s.products))
		for _, idx := range s.nameOrder {
			p := s.products[idx]
			if query == "" || strings.Contains(strings.ToLower(p.Name), query) {
				matched = append(matched, p)
			}
		}
	}
	switch params.Sort {
	case SortPriceLow:
		slices.SortStableFunc(matched, func(a, b Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceHigh:
		slices.SortStableFunc(matched, func(a, b Product) int { return b.Price.Cmp(a.Price) })
	}

	page, limit := params.Page, params.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	limit = min(limit, s.maxLimit)
	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	items := make([]Product, end-start)
	copy(items, matched[start:end])
	return SearchResult{
		Items:       items,
		Total:       len(matched),
		Page:        page,
		Limit:       limit,
		CatalogSize: len(s.products),
	}
}

// Get returns the product with id.
func (s *Service) Get(_ context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	idx, ok := s.byID[id]
	if !ok {
		return Product{}, &common.AppError{
			Code:       "NOT_FOUND",
			Message:    "product not found",
			HTTPStatus: http.StatusNotFound,
			Err:        fmt.Errorf("%w: %s", ErrProductNotFound, id),
		}
	}
	return s.products[idx], nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", value)
	}
}

func normalizeSort(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return SortName, nil
	case SortName, SortPriceLow, SortPriceHigh:
		return s, nil
	default:
		return "", fmt.Errorf("invalid sort: %s", s)
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
