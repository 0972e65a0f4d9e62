package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Executor runs queries for the repositories.
//
// CONNECTION LIFETIME:
// sqlx.DB is a pool. Every logical operation (a paginated list is a count, a
// data query and maybe a batch of related rows) borrows exactly one
// connection with WithConn or InTx, runs all of its statements on it, and
// gives it back when the callback returns. Nothing is held between calls.
//
// Inside the callback, talk to the database through the Session only. With
// SQLite the pool is capped at one connection, so reaching for the pool again
// from inside a callback would wait forever for the connection you are
// already holding.
type Executor struct {
	db      *sqlx.DB
	dialect *Dialect
	logger  *slog.Logger
}

func NewExecutor(db *sqlx.DB, dialect *Dialect, logger *slog.Logger) *Executor {
	return &Executor{db: db, dialect: dialect, logger: logger}
}

func (e *Executor) Dialect() *Dialect { return e.dialect }

// WithConn runs fn on one pooled connection. Statements in fn share one
// context, which is cancelled as soon as fn returns; a cancelled count query
// never leaves a data query running behind it.
func (e *Executor) WithConn(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := e.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("query: acquiring connection: %w", err)
	}
	defer conn.Close()

	return fn(ctx, e.session(conn))
}

// InTx runs fn inside one transaction on one connection. The transaction is
// committed when fn returns nil and rolled back otherwise, so dependent
// writes either all land or none do.
func (e *Executor) InTx(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("query: beginning transaction: %w", err)
	}

	if err := fn(ctx, e.session(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("query: rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("query: committing transaction: %w", err)
	}
	return nil
}

func (e *Executor) session(q queryer) *Session {
	return &Session{q: q, dialect: e.dialect, norm: e.dialect.Normalizer(), logger: e.logger}
}

// queryer is what *sqlx.Conn and *sqlx.Tx have in common.
type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query describes one paginated read: a projection over a relation, the
// predicate from a Builder and the ORDER BY from a Sorter. Every part is
// static SQL owned by a repository; caller values only ever travel in
// Where.Args.
type Query struct {
	Name      string // used in errors and logs
	Select    string // column list
	From      string // table expression including joins
	Where     Where
	OrderBy   string
	CountExpr string // defaults to COUNT(*)
}

func (q Query) countSQL() string {
	expr := q.CountExpr
	if expr == "" {
		expr = "COUNT(*)"
	}
	return "SELECT " + expr + " AS total FROM " + q.From + q.Where.SQL()
}

func (q Query) dataSQL() string {
	s := "SELECT " + q.Select + " FROM " + q.From + q.Where.SQL()
	if q.OrderBy != "" {
		s += " ORDER BY " + q.OrderBy
	}
	return s + " LIMIT ? OFFSET ?"
}

// Session is the statement-execution capability handed to callbacks. It
// encodes parameters through the Normalizer and rewrites placeholders for the
// backend, so repository SQL is written once with '?'.
type Session struct {
	q       queryer
	dialect *Dialect
	norm    *Normalizer
	logger  *slog.Logger
}

func (s *Session) Dialect() *Dialect       { return s.dialect }
func (s *Session) Normalizer() *Normalizer { return s.norm }

// Row wraps raw for typed reads with this session's Normalizer.
func (s *Session) Row(raw RawRow) *Row { return NewRow(raw, s.norm) }

// Page runs the count query, then the data query for the requested page.
//
// The two statements share the filter but not a snapshot: under concurrent
// writes the total and the items can disagree slightly. A page past the end
// is not an error; it comes back empty with the real total and the data
// query is skipped.
func (s *Session) Page(ctx context.Context, q Query, req PageRequest) (PageResult[RawRow], error) {
	start := time.Now()
	req = req.Normalize()

	total, err := s.Count(ctx, q.Name+" count", q.countSQL(), q.Where.Args...)
	if err != nil {
		return PageResult[RawRow]{}, err
	}

	result := PageResult[RawRow]{
		Items:      []RawRow{},
		TotalCount: total,
		Page:       req.Page,
		PageSize:   req.Size,
		TotalPages: TotalPages(total, req.Size),
	}
	if int64(req.Offset()) >= total {
		s.logPage(q.Name, result, start)
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return PageResult[RawRow]{}, fmt.Errorf("query: %s: %w", q.Name, err)
	}

	args := append(append([]any{}, q.Where.Args...), req.Size, req.Offset())
	rows, err := s.Select(ctx, q.Name, q.dataSQL(), args...)
	if err != nil {
		return PageResult[RawRow]{}, err
	}
	result.Items = rows
	s.logPage(q.Name, result, start)
	return result, nil
}

func (s *Session) logPage(name string, p PageResult[RawRow], start time.Time) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("paged query",
		slog.String("query", name),
		slog.Int64("total", p.TotalCount),
		slog.Int("page", p.Page),
		slog.Int("items", len(p.Items)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// Select runs query and returns every row.
func (s *Session) Select(ctx context.Context, name, query string, args ...any) ([]RawRow, error) {
	rows, err := s.q.QueryxContext(ctx, s.dialect.Rebind(query), s.norm.EncodeAll(args)...)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", name, err)
	}
	defer rows.Close()

	out := []RawRow{}
	for rows.Next() {
		raw := RawRow{}
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("query: %s: scanning row %d: %w", name, len(out), err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %s: %w", name, err)
	}
	return out, nil
}

// Get runs query and returns its first row, or an error wrapping
// sql.ErrNoRows when there is none.
func (s *Session) Get(ctx context.Context, name, query string, args ...any) (RawRow, error) {
	rows, err := s.Select(ctx, name, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("query: %s: %w", name, sql.ErrNoRows)
	}
	return rows[0], nil
}

// Aggregate runs a statistics query that reuses a Builder's Where but skips
// pagination. Aggregates always produce exactly one row.
func (s *Session) Aggregate(ctx context.Context, name, selectList, from string, where Where) (*Row, error) {
	raw, err := s.Get(ctx, name, "SELECT "+selectList+" FROM "+from+where.SQL(), where.Args...)
	if err != nil {
		return nil, err
	}
	return s.Row(raw), nil
}

// Count runs a query whose first row has a single integer column "total".
func (s *Session) Count(ctx context.Context, name, query string, args ...any) (int64, error) {
	raw, err := s.Get(ctx, name, query, args...)
	if err != nil {
		return 0, err
	}
	r := s.Row(raw)
	n := r.Int64("total")
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("query: %s: %w", name, err)
	}
	return n, nil
}

// SelectIn runs a query containing "IN (?)" placeholders bound to slice
// arguments, expanding each slice with sqlx.In. An empty slice means no
// parent keys, so there is nothing to load and no statement is issued.
func (s *Session) SelectIn(ctx context.Context, name, query string, args ...any) ([]RawRow, error) {
	expanded, flat, empty, err := s.expandIn(query, args)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", name, err)
	}
	if empty {
		return []RawRow{}, nil
	}
	rows, err := s.q.QueryxContext(ctx, s.dialect.Rebind(expanded), flat...)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", name, err)
	}
	defer rows.Close()

	out := []RawRow{}
	for rows.Next() {
		raw := RawRow{}
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("query: %s: scanning row %d: %w", name, len(out), err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %s: %w", name, err)
	}
	return out, nil
}

// ExecIn is Exec for statements with "IN (?)" slice arguments. An empty
// slice affects nothing and issues no statement.
func (s *Session) ExecIn(ctx context.Context, name, query string, args ...any) (int64, error) {
	expanded, flat, empty, err := s.expandIn(query, args)
	if err != nil {
		return 0, fmt.Errorf("query: %s: %w", name, err)
	}
	if empty {
		return 0, nil
	}
	res, err := s.q.ExecContext(ctx, s.dialect.Rebind(expanded), flat...)
	if err != nil {
		return 0, fmt.Errorf("query: %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("query: %s: rows affected: %w", name, err)
	}
	return n, nil
}

// expandIn encodes args (slice elements one by one) and expands the IN
// placeholders. empty is true when any slice argument has no elements.
func (s *Session) expandIn(query string, args []any) (expanded string, flat []any, empty bool, err error) {
	encoded := make([]any, len(args))
	for i, a := range args {
		rv := reflect.ValueOf(a)
		if a == nil || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
			encoded[i] = s.norm.Encode(a)
			continue
		}
		if rv.Len() == 0 {
			return "", nil, true, nil
		}
		items := make([]any, rv.Len())
		for j := range items {
			items[j] = s.norm.Encode(rv.Index(j).Interface())
		}
		encoded[i] = items
	}

	expanded, flat, err = sqlx.In(query, encoded...)
	if err != nil {
		return "", nil, false, fmt.Errorf("expanding IN: %w", err)
	}
	return expanded, flat, false, nil
}

// Exec runs a statement and returns the number of affected rows.
func (s *Session) Exec(ctx context.Context, name, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, s.dialect.Rebind(query), s.norm.EncodeAll(args)...)
	if err != nil {
		return 0, fmt.Errorf("query: %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("query: %s: rows affected: %w", name, err)
	}
	return n, nil
}

// InsertValues renders "(?, ?), (?, ?)" for a multi-row insert of n rows of
// width columns.
func InsertValues(n, width int) string {
	row := "(" + placeholders(width) + ")"
	return strings.TrimSuffix(strings.Repeat(row+", ", n), ", ")
}
