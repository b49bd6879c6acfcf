package common

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalItems int  `json:"total_items"`
	HasMore    bool `json:"has_more"`
}

// NewPagination derives the block for a 1-based page of perPage items.
func NewPagination(page, perPage, total int) Pagination {
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		HasMore:    page*perPage < total,
	}
}
