package query

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect carries everything that differs between backends at the SQL level:
// placeholder style, the case-insensitive LIKE operator, a couple of
// expression templates, and the value Normalizer. It is built once at startup
// and injected; nothing else in the engine branches on the backend.
type Dialect struct {
	backend Backend
	bind    int
	like    string
	norm    *Normalizer
}

// NewDialect builds the dialect for backend b.
func NewDialect(b Backend) (*Dialect, error) {
	norm, err := NewNormalizer(b)
	if err != nil {
		return nil, err
	}
	d := &Dialect{backend: b, norm: norm, like: "LIKE"}
	switch b {
	case SQLite, MySQL:
		d.bind = sqlx.QUESTION
	case Postgres:
		d.bind = sqlx.DOLLAR
		d.like = "ILIKE"
	}
	return d, nil
}

// MustDialect is NewDialect for static backends; it panics on error.
func MustDialect(b Backend) *Dialect {
	d, err := NewDialect(b)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Dialect) Backend() Backend        { return d.backend }
func (d *Dialect) Normalizer() *Normalizer { return d.norm }

// DriverName is the database/sql driver name registered for the backend.
func (d *Dialect) DriverName() string {
	switch d.backend {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders into the backend's bind style.
func (d *Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.bind, query)
}

// LikeOperator is the case-insensitive pattern match operator.
func (d *Dialect) LikeOperator() string { return d.like }

// SecondsBetween returns an expression for the number of seconds from the
// timestamp expression from to the timestamp expression to.
func (d *Dialect) SecondsBetween(from, to string) string {
	switch d.backend {
	case Postgres:
		return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", to, from)
	case MySQL:
		return fmt.Sprintf("(TIMESTAMPDIFF(MICROSECOND, %s, %s) / 1000000)", from, to)
	}
	return fmt.Sprintf("((julianday(%s) - julianday(%s)) * 86400.0)", to, from)
}

// Upsert returns the clause that turns an INSERT into an update of columns
// when a row with the same conflict key already exists.
//
// SQLite and Postgres name the unique key and read the rejected row through
// "excluded"; MySQL reacts to any unique key and reads it through VALUES().
func (d *Dialect) Upsert(conflict []string, columns []string) string {
	sets := make([]string, len(columns))
	if d.backend == MySQL {
		for i, c := range columns {
			sets[i] = c + " = VALUES(" + c + ")"
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for i, c := range columns {
		sets[i] = c + " = excluded." + c
	}
	return " ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}
