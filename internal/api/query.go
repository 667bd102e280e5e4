package api

import (
	"net/http"
	"regexp"
	"strings"

	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/marketplace"
	"github.com/elghella/marketplace/internal/records"
)

// Page size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var filterParam = regexp.MustCompile(`^filter\[([a-z_][a-z0-9_]*)\]$`)

// columnChecker reports whether a column exists on a resource.
type columnChecker interface {
	HasColumn(col string) bool
}

// pagination reads limit and offset. Limits above MaxLimit are clamped.
func pagination(r *http.Request) (int, int, error) {
	limit, err := httputil.QueryInt(r, "limit", DefaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if limit == 0 || limit > MaxLimit {
		limit = min(max(limit, DefaultLimit), MaxLimit)
	}
	offset, err := httputil.QueryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// listingQuery translates listing query parameters into a records query:
// search, min_price, max_price, location, available, sort, order, limit,
// offset and filter[column]=value.
func listingQuery(r *http.Request, res columnChecker) (records.Query, error) {
	values := r.URL.Query()
	limit, offset, err := pagination(r)
	if err != nil {
		return records.Query{}, err
	}
	q := records.Query{
		Search: strings.TrimSpace(values.Get("search")),
		Limit:  limit,
		Offset: offset,
	}

	minPrice, err := httputil.QueryFloat(r, "min_price")
	if err != nil {
		return q, err
	}
	maxPrice, err := httputil.QueryFloat(r, "max_price")
	if err != nil {
		return q, err
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return q, svcerrors.Validation("min_price", "min_price must not exceed max_price")
	}
	if minPrice != nil {
		q = q.Where("price", records.OpGte, *minPrice)
	}
	if maxPrice != nil {
		q = q.Where("price", records.OpLte, *maxPrice)
	}
	if loc := strings.TrimSpace(values.Get("location")); loc != "" {
		q = q.Where("location", records.OpILike, "*"+loc+"*")
	}
	available, err := httputil.QueryBool(r, "available")
	if err != nil {
		return q, err
	}
	if available != nil {
		q = q.Where("is_available", records.OpEq, *available)
	}

	for key, vals := range values {
		m := filterParam.FindStringSubmatch(key)
		if m == nil || len(vals) == 0 {
			continue
		}
		if !res.HasColumn(m[1]) {
			return q, svcerrors.Validation(key, "unknown column")
		}
		q = q.Where(m[1], records.OpEq, vals[0])
	}

	if col := strings.TrimSpace(values.Get("sort")); col != "" {
		if !res.HasColumn(col) {
			return q, svcerrors.Validation("sort", "unknown column")
		}
		desc := true
		switch strings.ToLower(values.Get("order")) {
		case "", "desc":
		case "asc":
			desc = false
		default:
			return q, svcerrors.Validation("order", "order must be asc or desc")
		}
		q = q.OrderBy(col, desc)
	}
	return q, nil
}

// itemFilter reads the marketplace item query parameters.
func itemFilter(r *http.Request) (marketplace.ItemFilter, error) {
	values := r.URL.Query()
	limit, offset, err := pagination(r)
	if err != nil {
		return marketplace.ItemFilter{}, err
	}
	f := marketplace.ItemFilter{
		CategoryID: strings.TrimSpace(values.Get("category_id")),
		Search:     strings.TrimSpace(values.Get("search")),
		Condition:  strings.TrimSpace(values.Get("condition")),
		Location:   values.Get("location"),
		Sort:       strings.TrimSpace(values.Get("sort")),
		Limit:      limit,
		Offset:     offset,
	}
	if f.MinPrice, err = httputil.QueryFloat(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = httputil.QueryFloat(r, "max_price"); err != nil {
		return f, err
	}
	if f.Featured, err = httputil.QueryBool(r, "featured"); err != nil {
		return f, err
	}
	return f, nil
}
