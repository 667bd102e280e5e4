package records

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is the column view of an entity, as produced by its JSON encoding.
type Row map[string]any

// ToRow converts an entity to its column view.
func ToRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

// Match reports whether row satisfies every filter and the search term.
func Match(row Row, q Query, searchable []string) bool {
	for _, f := range q.Filters {
		if !matchFilter(row[f.Column], f) {
			return false
		}
	}
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		found := false
		for _, col := range searchable {
			if s, ok := row[col].(string); ok && strings.Contains(strings.ToLower(s), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply filters, sorts and paginates already-fetched items client-side.
func Apply[T any](items []T, q Query, searchable []string) ([]T, error) {
	type pair struct {
		item T
		row  Row
	}
	matched := make([]pair, 0, len(items))
	for _, item := range items {
		row, err := ToRow(item)
		if err != nil {
			return nil, err
		}
		if Match(row, q, searchable) {
			matched = append(matched, pair{item, row})
		}
	}

	sorts := q.Sorts()
	sort.SliceStable(matched, func(i, j int) bool {
		for _, s := range sorts {
			c := compare(matched[i].row[s.Column], matched[j].row[s.Column])
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	out := make([]T, 0, end-start)
	for _, p := range matched[start:end] {
		out = append(out, p.item)
	}
	return out, nil
}

func matchFilter(value any, f Filter) bool {
	switch f.Op {
	case OpEq:
		return compare(value, f.Value) == 0 && value != nil
	case OpNeq:
		return value == nil || compare(value, f.Value) != 0
	case OpGt:
		return value != nil && compare(value, f.Value) > 0
	case OpGte:
		return value != nil && compare(value, f.Value) >= 0
	case OpLt:
		return value != nil && compare(value, f.Value) < 0
	case OpLte:
		return value != nil && compare(value, f.Value) <= 0
	case OpILike:
		s, ok := value.(string)
		return ok && likeMatch(s, fmt.Sprint(f.Value))
	case OpIn:
		candidates, _ := asSlice(f.Value)
		for _, c := range candidates {
			if value != nil && compare(value, c) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		have, ok := value.([]any)
		if !ok {
			return false
		}
		want, _ := asSlice(f.Value)
		for _, w := range want {
			found := false
			for _, h := range have {
				if compare(h, w) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case OpIs:
		if f.Value == nil {
			return value == nil
		}
		b, ok := value.(bool)
		return ok && b == f.Value.(bool)
	}
	return false
}

// compare orders a row value against another value. Rows hold JSON types
// (float64, string, bool, nil) while query values may be Go numbers or the
// raw strings of a URL query. Two strings always compare as text, matching
// Postgres ordering of text columns such as phone numbers.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	_, aText := a.(string)
	_, bText := b.(string)
	if af, ok := toFloat(a); ok && !(aText && bText) {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if ab, ok := toBool(a); ok {
		if bb, ok := toBool(b); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}

	as, bs := toString(a), toString(b)
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Compare(bt)
		}
	}
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	}
	return false, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// likeMatch implements case-insensitive ILIKE with * or % wildcards.
func likeMatch(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*', '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
