package util

const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// ListFilter carries the filters, ordering and page of a list request.
type ListFilter struct {
	Filters []QueryFilter
	Order   []OrderClause
	Page    int
	PerPage int
}

// ParseListFilter builds a validated ListFilter from the raw query and order
// strings of a list request. Paging is normalized.
func ParseListFilter(query, order string, page, perPage int, queryFields, orderFields []string) (ListFilter, error) {
	filters, err := ParseQueryString(query)
	if err != nil {
		return ListFilter{}, err
	}
	if err := ValidateFilterFields(filters, queryFields); err != nil {
		return ListFilter{}, err
	}

	orders, err := ParseOrderString(order)
	if err != nil {
		return ListFilter{}, err
	}
	if err := ValidateOrderFields(orders, orderFields); err != nil {
		return ListFilter{}, err
	}

	f := ListFilter{Filters: filters, Order: orders, Page: page, PerPage: perPage}
	f.Normalize()
	return f, nil
}

// Normalize clamps Page to at least 1 and PerPage to 1..MaxPerPage,
// defaulting to DefaultPerPage.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PerPage <= 0:
		f.PerPage = DefaultPerPage
	case f.PerPage > MaxPerPage:
		f.PerPage = MaxPerPage
	}
}

// TotalPages is the number of pages needed for total rows.
func (f ListFilter) TotalPages(total int) int {
	if f.PerPage <= 0 {
		return 0
	}
	return (total + f.PerPage - 1) / f.PerPage
}
