package record

// PageInfo replaces Total for providers using cursor pagination.
type PageInfo struct {
	HasPreviousPage bool `json:"hasPreviousPage" yaml:"has_previous_page"`
	HasNextPage     bool `json:"hasNextPage" yaml:"has_next_page"`
}

// List is the cached value of getList and getManyReference entries.
type List struct {
	Data     []Record  `json:"data"`
	Total    *int      `json:"total,omitempty"`
	PageInfo *PageInfo `json:"pageInfo,omitempty"`
}

// Infinite is the cached value of getInfiniteList entries.
type Infinite struct {
	Pages      []List `json:"pages"`
	PageParams []any  `json:"pageParams"`
}

// IntPtr is a small helper for building List totals.
func IntPtr(n int) *int { return &n }
