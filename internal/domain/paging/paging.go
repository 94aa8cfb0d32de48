package paging

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Page struct {
	Number int
	Limit  int
}

// New clamps the requested page into the accepted range.
func New(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Number: number, Limit: limit}
}

func (p Page) Offset() int { return (p.Number - 1) * p.Limit }

type Meta struct {
	PageSize        int  `json:"page_size"`
	TotalRows       int  `json:"total_rows"`
	TotalPages      int  `json:"total_pages"`
	CurrentPage     int  `json:"current_page"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

func (p Page) Meta(total int) Meta {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{
		PageSize:        p.Limit,
		TotalRows:       total,
		TotalPages:      pages,
		CurrentPage:     p.Number,
		HasNextPage:     p.Number < pages,
		HasPreviousPage: p.Number > 1,
	}
}
