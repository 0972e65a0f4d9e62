package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// ELAPSED TIME:
// Request durations are stored as integer microseconds on every backend
// rather than as each backend's duration type. That keeps "slower than X"
// filters, averages and maximums plain integer arithmetic.
const accessLogColumns = `l.id, l.request_id, l.user_id, l.method, l.path, l.status, l.elapsed_us,
	l.bytes, l.remote_ip, l.user_agent, l.created_at`

// AccessLogStore is the access-log repository.
type AccessLogStore struct {
	*Store
	filter *query.Builder
	sorter *query.Sorter
}

var _ repository.AccessLogRepository = (*AccessLogStore)(nil)

func newAccessLogStore(s *Store) *AccessLogStore {
	return &AccessLogStore{
		Store: s,
		filter: s.builder(
			query.Field{Name: "user_id", Column: "l.user_id", Op: query.OpEquals},
			query.Field{Name: "method", Column: "l.method", Op: query.OpEquals},
			query.Field{Name: "path", Column: "l.path", Op: query.OpContains},
			query.Field{Name: "status", Column: "l.status", Op: query.OpRange},
			query.Field{Name: "elapsed", Column: "l.elapsed_us", Op: query.OpRange},
			query.Field{Name: "created", Column: "l.created_at", Op: query.OpRange},
		),
		sorter: query.NewSorter(repository.AccessLogSorts, map[string]string{
			repository.AccessLogSortCreated:  "l.created_at",
			repository.AccessLogSortDuration: "l.elapsed_us",
			repository.AccessLogSortStatus:   "l.status",
		}, "l.created_at", "l.id"),
	}
}

func accessLogFilter(f repository.AccessLogFilter) query.Filter {
	q := query.Filter{}
	if f.UserID != nil {
		q.Set("user_id", query.Equals(f.UserID))
	}
	if f.Method != nil {
		q.Set("method", query.Equals(f.Method))
	}
	if f.Path != "" {
		q.Set("path", query.Contains(f.Path))
	}
	if f.StatusMin != nil || f.StatusMax != nil {
		q.Set("status", query.Between(f.StatusMin, f.StatusMax))
	}
	if f.MinDuration != nil {
		q.Set("elapsed", query.AtLeast(f.MinDuration.Microseconds()))
	}
	if c, ok := timeRange(f.Created); ok {
		q.Set("created", c)
	}
	return q
}

func scanAccessLog(r *query.Row) model.AccessLog {
	return model.AccessLog{
		ID:        r.ID("id"),
		RequestID: r.String("request_id"),
		UserID:    r.OptID("user_id"),
		Method:    r.String("method"),
		Path:      r.String("path"),
		Status:    r.Int32("status"),
		Duration:  time.Duration(r.Int64("elapsed_us")) * time.Microsecond,
		Bytes:     r.Int64("bytes"),
		RemoteIP:  r.String("remote_ip"),
		UserAgent: r.String("user_agent"),
		CreatedAt: r.Time("created_at"),
	}
}

// Record appends one entry. CreatedAt is kept when the caller set it (the
// request's start time) and defaults to now.
func (s *AccessLogStore) Record(ctx context.Context, l *model.AccessLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.timestamp()
	}
	l.CreatedAt = l.CreatedAt.UTC().Truncate(time.Microsecond)
	l.Duration = l.Duration.Truncate(time.Microsecond)

	_, err := s.exec1(ctx, "insert access log",
		`INSERT INTO access_logs
			(id, request_id, user_id, method, path, status, elapsed_us, bytes, remote_ip, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.RequestID, l.UserID, l.Method, l.Path, l.Status, l.Duration.Microseconds(),
		l.Bytes, l.RemoteIP, l.UserAgent, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: recording access log: %w", err)
	}
	return nil
}

func (s *AccessLogStore) List(ctx context.Context, f repository.AccessLogFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.AccessLog], error) {
	where, err := s.filter.Build(accessLogFilter(f))
	if err != nil {
		return query.PageResult[model.AccessLog]{}, err
	}

	var out query.PageResult[model.AccessLog]
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		out, err = list(ctx, sess, query.Query{
			Name:    "list access logs",
			Select:  accessLogColumns,
			From:    "access_logs l",
			Where:   where,
			OrderBy: s.sorter.Resolve(sort),
		}, p, scanAccessLog)
		return err
	})
	if err != nil {
		return query.PageResult[model.AccessLog]{}, fmt.Errorf("sqlstore: listing access logs: %w", err)
	}
	return out, nil
}

const accessLogStatsColumns = `COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN l.status >= 500 THEN 1 ELSE 0 END), 0) AS errors,
	COALESCE(SUM(CASE WHEN l.status >= 400 AND l.status < 500 THEN 1 ELSE 0 END), 0) AS client_errors,
	COUNT(DISTINCT l.user_id) AS unique_users,
	AVG(l.elapsed_us) AS avg_us,
	MAX(l.elapsed_us) AS max_us`

func (s *AccessLogStore) Stats(ctx context.Context, f repository.AccessLogFilter) (*model.AccessLogStats, error) {
	where, err := s.filter.Build(accessLogFilter(f))
	if err != nil {
		return nil, err
	}

	var stats model.AccessLogStats
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		r, err := sess.Aggregate(ctx, "access log stats", accessLogStatsColumns, "access_logs l", where)
		if err != nil {
			return err
		}
		stats = model.AccessLogStats{
			Total:       r.Int64("total"),
			Errors:      r.Int64("errors"),
			ClientError: r.Int64("client_errors"),
			UniqueUsers: r.Int64("unique_users"),
			AvgDuration: time.Duration(r.OptFloat("avg_us") * float64(time.Microsecond)).Round(time.Microsecond),
			MaxDuration: time.Duration(r.OptInt64("max_us")) * time.Microsecond,
		}
		return r.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: access log stats: %w", err)
	}
	return &stats, nil
}

func (s *AccessLogStore) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.exec1(ctx, "purge access logs", `DELETE FROM access_logs WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purging access logs: %w", err)
	}
	s.logger.Info("access logs purged", slog.Time("before", before), slog.Int64("deleted", n))
	return n, nil
}
