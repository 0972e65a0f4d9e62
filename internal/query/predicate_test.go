package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-store/internal/apperror"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var stale = &Condition{
	Name: "stale",
	SQL:  "created_at <= ?",
	Args: func(now time.Time) []any { return []any{now.Add(-24 * time.Hour)} },
}

func testBuilder(b Backend) *Builder {
	return NewBuilder(MustDialect(b),
		Field{Name: "status", Column: "r.status", Op: OpEquals},
		Field{Name: "created", Column: "r.created_at", Op: OpRange},
		Field{Name: "reason", Column: "r.reason", Op: OpIn},
		Field{Name: "search", Column: "r.note", Op: OpContains},
		Field{Name: "resolved", Column: "r.resolved", Op: OpFlag},
		Field{Name: "stale", Op: OpFlag, Condition: stale},
	).WithClock(func() time.Time { return fixedNow })
}

func TestBuild_EmptyFilter(t *testing.T) {
	w, err := testBuilder(SQLite).Build(Filter{})
	require.NoError(t, err)
	assert.Empty(t, w.Fragments)
	assert.Empty(t, w.Args)
	assert.Equal(t, "", w.SQL())

	w, err = testBuilder(SQLite).Build(nil)
	require.NoError(t, err)
	assert.Empty(t, w.Fragments)
}

func TestBuild_SingleField(t *testing.T) {
	lo := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := lo.Add(time.Hour)

	tests := []struct {
		name      string
		filter    Filter
		fragments []string
		args      []any
	}{
		{"equals", Filter{"status": Equals("pending")}, []string{"r.status = ?"}, []any{"pending"}},
		{"equals nil", Filter{"status": Equals(nil)}, []string{"r.status IS NULL"}, nil},
		{"full range", Filter{"created": Between(lo, hi)}, []string{"r.created_at >= ?", "r.created_at <= ?"}, []any{lo, hi}},
		{"lower only", Filter{"created": AtLeast(lo)}, []string{"r.created_at >= ?"}, []any{lo}},
		{"upper only", Filter{"created": AtMost(&hi)}, []string{"r.created_at <= ?"}, []any{hi}},
		{"nil pointer bound", Filter{"created": Between((*time.Time)(nil), hi)}, []string{"r.created_at <= ?"}, []any{hi}},
		{"one of", Filter{"reason": OneOf("spam", "abuse")}, []string{"r.reason IN (?, ?)"}, []any{"spam", "abuse"}},
		{"empty set", Filter{"reason": OneOf[string]()}, []string{"1 = 0"}, nil},
		{"contains", Filter{"search": Contains("go")}, []string{"r.note LIKE ? ESCAPE '!'"}, []any{"%go%"}},
		{"flag", Filter{"resolved": Flag(true)}, []string{"r.resolved = ?"}, []any{true}},
		{"condition", Filter{"stale": Flag(true)}, []string{"(created_at <= ?)"}, []any{fixedNow.Add(-24 * time.Hour)}},
		{"negated condition", Filter{"stale": Flag(false)}, []string{"NOT (created_at <= ?)"}, []any{fixedNow.Add(-24 * time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := testBuilder(SQLite).Build(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.fragments, w.Fragments)
			assert.Equal(t, tt.args, w.Args)
		})
	}
}

func TestBuild_FieldShapeIsStable(t *testing.T) {
	b := testBuilder(SQLite)

	alone, err := b.Build(Filter{"search": Contains("x")})
	require.NoError(t, err)

	combined, err := b.Build(Filter{
		"stale":   Flag(true),
		"search":  Contains("x"),
		"status":  Equals("open"),
		"created": AtLeast(fixedNow),
	})
	require.NoError(t, err)

	assert.Contains(t, combined.Fragments, alone.Fragments[0])
	// Declaration order, not map order.
	assert.Equal(t, []string{
		"r.status = ?",
		"r.created_at >= ?",
		"r.note LIKE ? ESCAPE '!'",
		"(created_at <= ?)",
	}, combined.Fragments)
	assert.Equal(t, " WHERE r.status = ? AND r.created_at >= ? AND r.note LIKE ? ESCAPE '!' AND (created_at <= ?)", combined.SQL())

	for i := 0; i < 20; i++ {
		again, err := b.Build(Filter{"created": AtLeast(fixedNow), "status": Equals("open"), "search": Contains("x"), "stale": Flag(true)})
		require.NoError(t, err)
		assert.Equal(t, combined, again)
	}
}

func TestBuild_ContainsEscapesWildcards(t *testing.T) {
	w, err := testBuilder(SQLite).Build(Filter{"search": Contains("100%_done!")})
	require.NoError(t, err)
	assert.Equal(t, []any{"%100!%!_done!!%"}, w.Args)
}

func TestBuild_PostgresUsesILike(t *testing.T) {
	w, err := testBuilder(Postgres).Build(Filter{"search": Contains("Go")})
	require.NoError(t, err)
	assert.Equal(t, []string{"r.note ILIKE ? ESCAPE '!'"}, w.Fragments)
}

func TestBuild_NeverInterpolates(t *testing.T) {
	evil := "'; DROP TABLE reports; --"
	w, err := testBuilder(SQLite).Build(Filter{"status": Equals(evil), "search": Contains(evil), "reason": OneOf(evil)})
	require.NoError(t, err)
	assert.NotContains(t, w.SQL(), "DROP")
}

func TestBuild_UnknownField(t *testing.T) {
	_, err := testBuilder(SQLite).Build(Filter{"status": Equals("x"), "zeta": Equals(1), "alpha": Equals(2)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUnknownFilterField))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "alpha", appErr.Field)
}

func TestBuild_WrongConstraintKind(t *testing.T) {
	_, err := testBuilder(SQLite).Build(Filter{"status": Contains("x")})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestNewBuilder_PanicsOnDuplicates(t *testing.T) {
	assert.Panics(t, func() {
		NewBuilder(MustDialect(SQLite),
			Field{Name: "a", Column: "a", Op: OpEquals},
			Field{Name: "a", Column: "b", Op: OpEquals},
		)
	})
	assert.Panics(t, func() {
		NewBuilder(MustDialect(SQLite), Field{Name: "c", Op: OpRange, Condition: stale})
	})
}

func TestWhere_And(t *testing.T) {
	w, err := testBuilder(SQLite).Build(Filter{"status": Equals("x")})
	require.NoError(t, err)
	w.And("r.deleted_at IS NULL")
	w.And("r.owner = ?", 7)
	assert.Equal(t, " WHERE r.status = ? AND r.deleted_at IS NULL AND r.owner = ?", w.SQL())
	assert.Equal(t, []any{"x", 7}, w.Args)
}
