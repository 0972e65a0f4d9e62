package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sakif/snippet-store/internal/apperror"
)

// Direction is the sort order of a Sort.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

func (d Direction) String() string {
	if d == Ascending {
		return "asc"
	}
	return "desc"
}

func (d Direction) sql() string {
	if d == Ascending {
		return "ASC"
	}
	return "DESC"
}

// ParseDirection accepts "asc" or "desc" (any case); "" means descending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc":
		return Descending, nil
	case "asc":
		return Ascending, nil
	}
	return Descending, apperror.ValidationFailed("direction", fmt.Sprintf("unknown sort direction %q", s))
}

// Sort is a whitelisted token plus a direction.
type Sort struct {
	Token     string
	Direction Direction
}

// SortSet is the closed list of tokens one schema can be sorted by, and its
// default order. It carries no SQL, so input boundaries can validate tokens
// without knowing how they are stored.
type SortSet struct {
	Default Sort
	Tokens  []string
}

// Has reports whether token is declared.
func (s SortSet) Has(token string) bool {
	for _, t := range s.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// Parse validates caller input at the boundary: an empty token selects the
// default order; an undeclared token fails with apperror.ErrUnknownSortToken.
func (s SortSet) Parse(token, direction string) (Sort, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		if strings.TrimSpace(direction) == "" {
			return s.Default, nil
		}
		token = s.Default.Token
	}
	if !s.Has(token) {
		return Sort{}, apperror.UnknownSortToken(token)
	}
	dir, err := ParseDirection(direction)
	if err != nil {
		return Sort{}, err
	}
	return Sort{Token: token, Direction: dir}, nil
}

// Sorter is a closed mapping from sort tokens to static ORDER BY expressions.
// Adding a sortable field means adding a token to the SortSet and its
// expression here; column names from callers are never accepted.
type Sorter struct {
	set      SortSet
	exprs    map[string]string
	tiebreak []string
}

// NewSorter binds every token in set to an expression. tiebreak expressions
// are appended after the chosen expression, in the same direction, so equal
// keys always come back in the same order. A token without an expression (or
// an expression without a token) is a programming error and panics.
func NewSorter(set SortSet, exprs map[string]string, tiebreak ...string) *Sorter {
	if !set.Has(set.Default.Token) {
		panic(fmt.Sprintf("query: default sort token %q is not declared", set.Default.Token))
	}
	if len(exprs) != len(set.Tokens) {
		panic("query: sort tokens and expressions do not match")
	}
	for _, tok := range set.Tokens {
		if exprs[tok] == "" {
			panic(fmt.Sprintf("query: sort token %q has no expression", tok))
		}
	}
	return &Sorter{set: set, exprs: exprs, tiebreak: tiebreak}
}

// Default is the order used when no valid token is given.
func (s *Sorter) Default() Sort { return s.set.Default }

// Tokens lists the declared tokens alphabetically.
func (s *Sorter) Tokens() []string {
	out := append([]string(nil), s.set.Tokens...)
	sort.Strings(out)
	return out
}

// Parse is SortSet.Parse for the sorter's tokens.
func (s *Sorter) Parse(token, direction string) (Sort, error) {
	return s.set.Parse(token, direction)
}

// Resolve returns the ORDER BY expression (without the keyword) for sort.
// Unknown or empty tokens resolve to the default order.
func (s *Sorter) Resolve(sort Sort) string {
	expr, ok := s.exprs[sort.Token]
	if !ok {
		sort = s.set.Default
		expr = s.exprs[sort.Token]
	}
	dir := sort.Direction.sql()

	parts := []string{expr + " " + dir}
	for _, t := range s.tiebreak {
		if t != expr {
			parts = append(parts, t+" "+dir)
		}
	}
	return strings.Join(parts, ", ")
}
