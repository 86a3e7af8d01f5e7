package utils

// PageResponse is one page of a listing. NextPageToken is left out on the
// last page.
type PageResponse[T any] struct {
	Items         []T   `json:"items"`
	NextPageToken int64 `json:"nextPageToken,omitempty"`
	ItemCount     int64 `json:"itemCount"`
}

// NewPageResponse answers page with items out of total matching records.
func NewPageResponse[T any](page PageRequest, items []T, total int64) PageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PageResponse[T]{
		Items:         items,
		NextPageToken: page.Next(total),
		ItemCount:     total,
	}
}
