// Package sqlstore implements the repository interfaces on top of the query
// engine. The same code serves SQLite, Postgres and MySQL.
//
// HOW A LIST CALL FLOWS:
//  1. The typed filter (repository.ReportFilter, ...) is translated into a
//     query.Filter keyed by the field names declared for that table.
//  2. The table's Builder turns it into WHERE fragments plus bound arguments;
//     the table's Sorter turns the requested sort into a static ORDER BY.
//  3. Session.Page runs the count and the data query on one connection.
//  4. query.MapPageRows hydrates entities from normalized rows, and related
//     rows (attachments, last messages) are batch-loaded by the page's keys.
//
// SQL IS WRITTEN ONCE:
// Every statement uses '?' placeholders and portable SQL. The Session rebinds
// placeholders and the Normalizer encodes arguments for the active backend,
// so no method here branches on which database is running.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// Store holds what every table's repository shares: the executor, the
// clock and the cache.
type Store struct {
	exec     *query.Executor
	dialect  *query.Dialect
	logger   *slog.Logger
	now      func() time.Time
	cache    query.Cache
	cacheTTL time.Duration
}

type Option func(*Store)

// WithClock replaces time.Now. Tests use it to pin "now" for timestamps and
// for age-based conditions such as high-priority reports.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCache enables read-through caching of single-entity lookups that
// support it (notification settings). The default is query.NopCache.
func WithCache(c query.Cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// New builds a Store on an open database.
func New(db *database.DB, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		exec:     db.Executor(),
		dialect:  db.Dialect,
		logger:   logger,
		now:      time.Now,
		cache:    query.NopCache{},
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repositories wires one repository per table.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:                &UserStore{Store: s},
		Reports:              newReportStore(s),
		Conversations:        newConversationStore(s),
		Messages:             newMessageStore(s),
		Attachments:          &AttachmentStore{Store: s},
		Drafts:               newDraftStore(s),
		Notifications:        newNotificationStore(s),
		NotificationSettings: &SettingStore{Store: s},
		AccessLogs:           newAccessLogStore(s),
	}
}

// timestamp is the write time for created_at/updated_at columns. It is
// truncated to microseconds, the finest precision every backend keeps, so a
// value read back equals the value written.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// builder declares a table's filter fields against the store's dialect and
// clock.
func (s *Store) builder(fields ...query.Field) *query.Builder {
	return query.NewBuilder(s.dialect, fields...).WithClock(s.now)
}

// exec1 runs one statement on its own connection.
func (s *Store) exec1(ctx context.Context, name, stmt string, args ...any) (int64, error) {
	var n int64
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		n, err = sess.Exec(ctx, name, stmt, args...)
		return err
	})
	return n, err
}

// getOne runs a lookup expected to return one row and maps it.
func getOne[T any](ctx context.Context, sess *query.Session, name, stmt string, mapFn func(*query.Row) T, args ...any) (T, error) {
	var zero T
	raw, err := sess.Get(ctx, name, stmt, args...)
	if err != nil {
		return zero, err
	}
	r := sess.Row(raw)
	v := mapFn(r)
	if err := r.Err(); err != nil {
		return zero, fmt.Errorf("query: %s: %w", name, err)
	}
	return v, nil
}

// list runs a paginated query and maps its rows.
func list[T any](ctx context.Context, sess *query.Session, q query.Query, p query.PageRequest, mapFn func(*query.Row) T) (query.PageResult[T], error) {
	raw, err := sess.Page(ctx, q, p)
	if err != nil {
		return query.PageResult[T]{}, err
	}
	out, err := query.MapPageRows(raw, sess.Normalizer(), mapFn)
	if err != nil {
		return query.PageResult[T]{}, fmt.Errorf("query: %s: %w", q.Name, err)
	}
	return out, nil
}

// notFound turns a missing row into apperror.ErrNotFound. Other errors pass
// through untouched.
func notFound(err error, resource string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id.String())
	}
	return err
}

// conflict turns a unique-key violation into apperror.ErrConflict.
func conflict(err error, resource, key string) error {
	if database.IsUniqueViolation(err) {
		return apperror.Conflict(resource, key)
	}
	return err
}

// requireAffected reports a NotFound when an UPDATE or DELETE by id matched
// no row.
func requireAffected(n int64, resource string, id uuid.UUID) error {
	if n == 0 {
		return apperror.NotFound(resource, id.String())
	}
	return nil
}

// userColumns selects the summary columns of a joined users alias as
// <prefix>_id, <prefix>_login and <prefix>_avatar.
func userColumns(alias, prefix string) string {
	return alias + ".id AS " + prefix + "_id, " +
		alias + ".login AS " + prefix + "_login, " +
		alias + ".avatar_url AS " + prefix + "_avatar"
}

// userSummary reads the columns produced by userColumns. An outer join that
// found nothing yields nil.
func userSummary(r *query.Row, prefix string) *model.UserSummary {
	if !r.Has(prefix + "_id") {
		return nil
	}
	return &model.UserSummary{
		ID:        r.ID(prefix + "_id"),
		Login:     r.String(prefix + "_login"),
		AvatarURL: r.String(prefix + "_avatar"),
	}
}

// timeRange converts a repository.TimeRange into a range constraint, or
// reports false when neither bound is set.
func timeRange(r repository.TimeRange) (query.Constraint, bool) {
	if !r.Active() {
		return query.Constraint{}, false
	}
	return query.Between(r.From, r.To), true
}
