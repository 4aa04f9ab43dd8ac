// Package pagination turns page/limit query parameters into offsets and wraps
// one page of results with its position in the full listing.
package pagination

import (
	"math"
	"net/url"
	"strconv"
)

const (
	MaxLimit     int32 = 100
	DefaultPage  int32 = 1
	DefaultLimit int32 = 10
)

// Params is a validated page request. Page is 1-based.
type Params struct {
	Page   int32
	Limit  int32
	Offset int32
}

type Option func(*Params)

// WithDefaultLimit sets the limit used when the query has none. Values above
// MaxLimit are clamped.
func WithDefaultLimit(limit int32) Option {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// FromQuery reads page and limit from q. Missing, malformed or non-positive
// values fall back to the defaults. Page is clamped so that Offset+Limit
// stays within int32.
func FromQuery(q url.Values, opts ...Option) Params {
	params := Params{Page: DefaultPage, Limit: DefaultLimit}
	for _, opt := range opts {
		opt(&params)
	}

	if v, ok := positive(q.Get("page")); ok {
		params.Page = v
	}
	if v, ok := positive(q.Get("limit")); ok {
		params.Limit = v
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	if maxPage := math.MaxInt32 / params.Limit; params.Page > maxPage {
		params.Page = maxPage
	}
	params.Offset = int32((int64(params.Page) - 1) * int64(params.Limit))
	return params
}

func positive(raw string) (int32, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v <= 0 {
		return 0, false
	}
	return int32(v), true
}

func HasNext(offset, limit, total int32) bool {
	return int64(offset)+int64(limit) < int64(total)
}

// Page is the JSON envelope for one page of a listing.
type Page[T any] struct {
	Items   []T   `json:"items"`
	Page    int32 `json:"page"`
	Limit   int32 `json:"limit"`
	Total   int32 `json:"total"`
	HasNext bool  `json:"hasNext"`
}

func NewPage[T any](items []T, p Params, total int32) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:   items,
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		HasNext: HasNext(p.Offset, p.Limit, total),
	}
}

// Slice returns the window of all that p selects, for listings held in memory.
func Slice[T any](all []T, p Params) []T {
	n := int64(len(all))
	offset := int64(p.Offset)
	if offset < 0 || offset >= n || p.Limit <= 0 {
		return []T{}
	}
	end := offset + int64(p.Limit)
	if end > n {
		end = n
	}
	return all[offset:end]
}
