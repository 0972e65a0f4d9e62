package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// AccessLogService reads and maintains the request log written by the
// access-log middleware.
type AccessLogService struct {
	logs   repository.AccessLogRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewAccessLogService(logs repository.AccessLogRepository, logger *slog.Logger) *AccessLogService {
	return &AccessLogService{logs: logs, logger: logger, now: utcNow}
}

// Record stores one entry. It is called after the response has been
// written, so a failure is logged and swallowed.
func (s *AccessLogService) Record(ctx context.Context, l *model.AccessLog) {
	if err := s.logs.Record(ctx, l); err != nil {
		s.logger.Error("failed to record access log",
			slog.String("request_id", l.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AccessLogService) List(ctx context.Context, f repository.AccessLogFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.AccessLog], error) {
	if f.StatusMin != nil && f.StatusMax != nil && *f.StatusMin > *f.StatusMax {
		return query.PageResult[model.AccessLog]{}, apperror.ValidationFailed("status", "status_min is greater than status_max")
	}
	return s.logs.List(ctx, f, sort, p)
}

func (s *AccessLogService) Stats(ctx context.Context, f repository.AccessLogFilter) (*model.AccessLogStats, error) {
	return s.logs.Stats(ctx, f)
}

// Purge deletes entries older than age.
func (s *AccessLogService) Purge(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, apperror.ValidationFailed("age", "age must be positive")
	}
	n, err := s.logs.PurgeBefore(ctx, s.now().Add(-age))
	if err != nil {
		return 0, err
	}
	s.logger.Info("access logs purged", slog.Duration("older_than", age), slog.Int64("deleted", n))
	return n, nil
}
