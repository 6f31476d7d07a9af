package rest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// OwnerColumn scopes every row to the authenticated user. Clients never see or set it.
const OwnerColumn = "owner_id"

// Row one table row as JSON object
type Row map[string]any

// Filter equality filter `?column=eq.value`
type Filter struct {
	Column string
	Value  string
}

// query parameters that are accepted and ignored
var reservedParams = map[string]struct{}{
	"select": {},
}

// ParseFilters reads PostgREST style filters. Only eq is supported.
func ParseFilters(q url.Values) ([]Filter, error) {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filters []Filter
	for _, column := range keys {
		if _, ok := reservedParams[column]; ok {
			continue
		}
		for _, raw := range q[column] {
			op, value, ok := strings.Cut(raw, ".")
			if !ok || op != "eq" {
				return nil, fmt.Errorf("%w: %s=%s", ErrUnsupportedFilter, column, raw)
			}
			filters = append(filters, Filter{Column: column, Value: value})
		}
	}
	return filters, nil
}
