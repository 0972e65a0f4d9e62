package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// HIGH PRIORITY:
// A report needs attention when its comment has been reported at least
// HighPriorityReports times, or when it has been pending for at least
// HighPriorityAge. Both the list filter and the statistics use the one
// condition below, so the thresholds live in exactly one place.
const (
	HighPriorityReports = 3
	HighPriorityAge     = 24 * time.Hour
)

// reportCountExpr counts every report filed against the same comment.
const reportCountExpr = `(SELECT COUNT(*) FROM comment_reports same WHERE same.comment_id = cr.comment_id)`

var highPriority = query.Condition{
	Name: "high_priority",
	SQL:  reportCountExpr + ` >= ? OR (cr.status = ? AND cr.created_at <= ?)`,
	Args: func(now time.Time) []any {
		return []any{HighPriorityReports, model.ReportPending, now.Add(-HighPriorityAge)}
	},
}

const (
	reportColumns = `cr.id, cr.comment_id, cr.snippet_id, cr.reporter_id, cr.reason, cr.details,
		cr.status, cr.handled_by, cr.handler_note, cr.handled_at, cr.created_at, cr.updated_at, ` +
		reportCountExpr + ` AS report_count`
	reportFrom = `comment_reports cr
		LEFT JOIN users rep ON rep.id = cr.reporter_id
		LEFT JOIN users hnd ON hnd.id = cr.handled_by`
)

var reportSelect = reportColumns + ", " + userColumns("rep", "rep") + ", " + userColumns("hnd", "hnd")

// ReportStore is the comment-report repository.
type ReportStore struct {
	*Store
	filter *query.Builder
	sorter *query.Sorter
}

var _ repository.ReportRepository = (*ReportStore)(nil)

func newReportStore(s *Store) *ReportStore {
	return &ReportStore{
		Store: s,
		filter: s.builder(
			query.Field{Name: "status", Column: "cr.status", Op: query.OpEquals},
			query.Field{Name: "statuses", Column: "cr.status", Op: query.OpIn},
			query.Field{Name: "reason", Column: "cr.reason", Op: query.OpEquals},
			query.Field{Name: "comment_id", Column: "cr.comment_id", Op: query.OpEquals},
			query.Field{Name: "snippet_id", Column: "cr.snippet_id", Op: query.OpEquals},
			query.Field{Name: "reporter_id", Column: "cr.reporter_id", Op: query.OpEquals},
			query.Field{Name: "handled_by", Column: "cr.handled_by", Op: query.OpEquals},
			query.Field{Name: "created", Column: "cr.created_at", Op: query.OpRange},
			query.Field{Name: "search", Column: "cr.details", Op: query.OpContains},
			query.Field{Name: "high_priority", Op: query.OpFlag, Condition: &highPriority},
		),
		// Unhandled reports sort after handled ones in both directions.
		sorter: query.NewSorter(repository.ReportSorts, map[string]string{
			repository.ReportSortCreated:  "cr.created_at",
			repository.ReportSortUpdated:  "cr.updated_at",
			repository.ReportSortStatus:   "cr.status",
			repository.ReportSortReason:   "cr.reason",
			repository.ReportSortHandled:  "CASE WHEN cr.handled_at IS NULL THEN 1 ELSE 0 END, cr.handled_at",
			repository.ReportSortPriority: "report_count",
		}, "cr.created_at", "cr.id"),
	}
}

func reportFilter(f repository.ReportFilter) query.Filter {
	q := query.Filter{}
	if f.Status != nil {
		q.Set("status", query.Equals(f.Status))
	}
	if f.Statuses != nil {
		q.Set("statuses", query.OneOf(f.Statuses...))
	}
	if f.Reason != nil {
		q.Set("reason", query.Equals(f.Reason))
	}
	if f.CommentID != nil {
		q.Set("comment_id", query.Equals(f.CommentID))
	}
	if f.SnippetID != nil {
		q.Set("snippet_id", query.Equals(f.SnippetID))
	}
	if f.ReporterID != nil {
		q.Set("reporter_id", query.Equals(f.ReporterID))
	}
	if f.HandledBy != nil {
		q.Set("handled_by", query.Equals(f.HandledBy))
	}
	if c, ok := timeRange(f.Created); ok {
		q.Set("created", c)
	}
	if f.Search != "" {
		q.Set("search", query.Contains(f.Search))
	}
	if f.HighPriority != nil {
		q.Set("high_priority", query.Flag(*f.HighPriority))
	}
	return q
}

func scanReport(r *query.Row) model.CommentReport {
	return model.CommentReport{
		ID:          r.ID("id"),
		CommentID:   r.ID("comment_id"),
		SnippetID:   r.ID("snippet_id"),
		ReporterID:  r.ID("reporter_id"),
		Reason:      model.ReportReason(r.String("reason")),
		Details:     r.String("details"),
		Status:      model.ReportStatus(r.String("status")),
		HandledBy:   r.OptID("handled_by"),
		HandlerNote: r.OptString("handler_note"),
		HandledAt:   r.OptTime("handled_at"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
		ReportCount: r.Int64("report_count"),
		Reporter:    userSummary(r, "rep"),
		Handler:     userSummary(r, "hnd"),
	}
}

// Create files a report. One user can report a comment once; a second
// report fails with apperror.ErrConflict.
func (s *ReportStore) Create(ctx context.Context, rep *model.CommentReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	if rep.Status == "" {
		rep.Status = model.ReportPending
	}
	now := s.timestamp()
	rep.CreatedAt, rep.UpdatedAt = now, now

	_, err := s.exec1(ctx, "insert report",
		`INSERT INTO comment_reports
			(id, comment_id, snippet_id, reporter_id, reason, details, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.CommentID, rep.SnippetID, rep.ReporterID, rep.Reason, rep.Details,
		rep.Status, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: creating report: %w", conflict(err, "report", rep.CommentID.String()))
	}
	return nil
}

func (s *ReportStore) get(ctx context.Context, sess *query.Session, id uuid.UUID) (model.CommentReport, error) {
	return getOne(ctx, sess, "get report",
		`SELECT `+reportSelect+` FROM `+reportFrom+` WHERE cr.id = ?`, scanReport, id)
}

func (s *ReportStore) GetByID(ctx context.Context, id uuid.UUID) (*model.CommentReport, error) {
	var rep model.CommentReport
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		rep, err = s.get(ctx, sess, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting report: %w", notFound(err, "report", id))
	}
	return &rep, nil
}

func (s *ReportStore) List(ctx context.Context, f repository.ReportFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.CommentReport], error) {
	where, err := s.filter.Build(reportFilter(f))
	if err != nil {
		return query.PageResult[model.CommentReport]{}, err
	}

	var out query.PageResult[model.CommentReport]
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		out, err = list(ctx, sess, query.Query{
			Name:    "list reports",
			Select:  reportSelect,
			From:    reportFrom,
			Where:   where,
			OrderBy: s.sorter.Resolve(sort),
		}, p, scanReport)
		return err
	})
	if err != nil {
		return query.PageResult[model.CommentReport]{}, fmt.Errorf("sqlstore: listing reports: %w", err)
	}
	return out, nil
}

// Handle records a moderator's decision and returns the updated report.
// The UPDATE only matches a report whose current status may move to
// h.Status, so of two racing moderators only one closes the report; the
// other gets a conflict.
func (s *ReportStore) Handle(ctx context.Context, id uuid.UUID, h repository.HandleReport) (*model.CommentReport, error) {
	var rep model.CommentReport
	err := s.exec.InTx(ctx, func(ctx context.Context, sess *query.Session) error {
		n, err := sess.ExecIn(ctx, "handle report",
			`UPDATE comment_reports
			 SET status = ?, handled_by = ?, handler_note = ?, handled_at = ?, updated_at = ?
			 WHERE id = ? AND status IN (?)`,
			h.Status, h.HandlerID, h.Note, h.HandledAt.UTC().Truncate(time.Microsecond), s.timestamp(), id,
			h.Status.Sources())
		if err != nil {
			return err
		}
		if n == 0 {
			// Missing, or in a status that cannot move to h.Status.
			if _, err := s.get(ctx, sess, id); err != nil {
				return notFound(err, "report", id)
			}
			return apperror.Conflict("report", id.String())
		}
		rep, err = s.get(ctx, sess, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: handling report: %w", err)
	}
	return &rep, nil
}

func (s *ReportStore) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.exec1(ctx, "delete report", `DELETE FROM comment_reports WHERE id = ?`, id)
	if err == nil {
		err = requireAffected(n, "report", id)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: deleting report: %w", err)
	}
	return nil
}

// Stats aggregates the reports matching f in one statement.
func (s *ReportStore) Stats(ctx context.Context, f repository.ReportFilter) (*model.ReportStats, error) {
	where, err := s.filter.Build(reportFilter(f))
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN cr.status = ? THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN cr.status = ? THEN 1 ELSE 0 END), 0) AS reviewing,
			COALESCE(SUM(CASE WHEN cr.status = ? THEN 1 ELSE 0 END), 0) AS resolved,
			COALESCE(SUM(CASE WHEN cr.status = ? THEN 1 ELSE 0 END), 0) AS dismissed,
			COALESCE(SUM(CASE WHEN (%s) THEN 1 ELSE 0 END), 0) AS high_priority,
			AVG(CASE WHEN cr.handled_at IS NOT NULL THEN %s END) AS avg_handling_seconds
		FROM comment_reports cr`,
		highPriority.SQL, s.dialect.SecondsBetween("cr.created_at", "cr.handled_at"))

	args := []any{model.ReportPending, model.ReportReviewing, model.ReportResolved, model.ReportDismissed}
	args = append(args, highPriority.Args(s.now())...)
	args = append(args, where.Args...)

	var stats model.ReportStats
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		stats, err = getOne(ctx, sess, "report stats", stmt+where.SQL(), func(r *query.Row) model.ReportStats {
			return model.ReportStats{
				Total:           r.Int64("total"),
				Pending:         r.Int64("pending"),
				Reviewing:       r.Int64("reviewing"),
				Resolved:        r.Int64("resolved"),
				Dismissed:       r.Int64("dismissed"),
				HighPriority:    r.Int64("high_priority"),
				AvgHandlingTime: seconds(r.OptFloat("avg_handling_seconds")),
			}
		}, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: report stats: %w", err)
	}
	return &stats, nil
}

// seconds converts a fractional second count from SQL arithmetic. SQLite's
// julianday keeps millisecond precision, so the result is rounded to that.
func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second)).Round(time.Millisecond)
}
