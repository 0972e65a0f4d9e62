package query

import "fmt"

// MapRows hydrates every raw row with mapFn. A failure names the row index so
// a bad value can be found without re-running the query.
func MapRows[T any](rows []RawRow, norm *Normalizer, mapFn func(r *Row) T) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, raw := range rows {
		r := NewRow(raw, norm)
		v := mapFn(r)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MapPageRows is MapRows over a page, keeping the page metadata.
func MapPageRows[T any](p PageResult[RawRow], norm *Normalizer, mapFn func(r *Row) T) (PageResult[T], error) {
	items, err := MapRows(p.Items, norm, mapFn)
	if err != nil {
		return PageResult[T]{}, err
	}
	return MapPage(p, items), nil
}

// Fold collapses items that share a key, which happens when a primary row
// fans out across several optional one-to-one joins. The first occurrence
// fixes the position in the result; merge folds each later duplicate into
// the accumulated value, so it sees rows in query order and can keep the
// latest joined value.
func Fold[T any, K comparable](items []T, key func(T) K, merge func(acc, next T) T) []T {
	index := make(map[K]int, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if i, ok := index[k]; ok {
			out[i] = merge(out[i], it)
			continue
		}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}

// GroupBy distributes children to their parents' keys, preserving the order
// the children were loaded in.
func GroupBy[T any, K comparable](items []T, key func(T) K) map[K][]T {
	out := make(map[K][]T)
	for _, it := range items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}

// Keys extracts the distinct keys of items, in first-seen order.
func Keys[T any, K comparable](items []T, key func(T) K) []K {
	seen := make(map[K]struct{}, len(items))
	out := make([]K, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
