package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// ModerationService handles comment reports: users file them, moderators
// review and close them.
type ModerationService struct {
	reports  repository.ReportRepository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewModerationService(reports repository.ReportRepository, notifier Notifier, logger *slog.Logger) *ModerationService {
	return &ModerationService{
		reports:  reports,
		notifier: notifier,
		logger:   logger,
		now:      utcNow,
	}
}

// NewReport is what a user submits when flagging a comment.
type NewReport struct {
	CommentID  uuid.UUID
	SnippetID  uuid.UUID
	ReporterID uuid.UUID
	Reason     model.ReportReason
	Details    string
}

// Report files a new pending report. A user reporting the same comment twice
// gets apperror.ErrConflict from the repository.
func (s *ModerationService) Report(ctx context.Context, in NewReport) (*model.CommentReport, error) {
	if in.CommentID == uuid.Nil {
		return nil, apperror.ValidationFailed("commentId", "comment ID is required")
	}
	if in.SnippetID == uuid.Nil {
		return nil, apperror.ValidationFailed("snippetId", "snippet ID is required")
	}
	if !in.Reason.Valid() {
		return nil, apperror.ValidationFailed("reason", fmt.Sprintf("unknown report reason %q", in.Reason))
	}
	details, err := text("details", in.Details, MaxReportDetailsLength, in.Reason == model.ReasonOther)
	if err != nil {
		return nil, err
	}

	r := &model.CommentReport{
		CommentID:  in.CommentID,
		SnippetID:  in.SnippetID,
		ReporterID: in.ReporterID,
		Reason:     in.Reason,
		Details:    details,
		Status:     model.ReportPending,
	}
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}

	s.logger.Info("comment reported",
		slog.String("id", r.ID.String()),
		slog.String("comment", r.CommentID.String()),
		slog.String("reason", string(r.Reason)),
	)
	return r, nil
}

func (s *ModerationService) Get(ctx context.Context, id uuid.UUID) (*model.CommentReport, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *ModerationService) List(ctx context.Context, f repository.ReportFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.CommentReport], error) {
	return s.reports.List(ctx, f, sort, p)
}

// Queue is the moderators' default view: open reports, most urgent first.
func (s *ModerationService) Queue(ctx context.Context, p query.PageRequest) (query.PageResult[model.CommentReport], error) {
	return s.reports.List(ctx,
		repository.ReportFilter{Statuses: []model.ReportStatus{model.ReportPending, model.ReportReviewing}},
		query.Sort{Token: repository.ReportSortPriority, Direction: query.Descending}, p)
}

// Handle records a moderator's decision.
//
// STATUS TRANSITIONS:
//
//	pending   → reviewing | resolved | dismissed
//	reviewing → resolved | dismissed
//
// A closed report stays closed; moving it again is a conflict. The reporter
// is told when their report is closed, on a best-effort basis: a failed
// notification is logged and the decision still stands.
func (s *ModerationService) Handle(ctx context.Context, id, moderator uuid.UUID, status model.ReportStatus, note string) (*model.CommentReport, error) {
	if !status.Valid() || status == model.ReportPending {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("cannot move a report to %q", status))
	}
	note, err := text("note", note, MaxReportDetailsLength, false)
	if err != nil {
		return nil, err
	}

	current, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanMoveTo(status) {
		return nil, apperror.Conflict("report", id.String())
	}

	h := repository.HandleReport{Status: status, HandlerID: moderator, HandledAt: s.now()}
	if note != "" {
		h.Note = &note
	}
	// The repository re-checks the transition, so a report closed by another
	// moderator since the read above comes back as a conflict.
	r, err := s.reports.Handle(ctx, id, h)
	if err != nil {
		return nil, fmt.Errorf("handling report: %w", err)
	}

	s.logger.Info("report handled",
		slog.String("id", id.String()),
		slog.String("status", string(status)),
		slog.String("moderator", moderator.String()),
	)

	if status.Closed() && r.ReporterID != moderator {
		_, err := s.notifier.Notify(ctx, &model.Notification{
			UserID:  r.ReporterID,
			ActorID: &moderator,
			Kind:    model.NotifyReportUpdate,
			Title:   fmt.Sprintf("Your report was %s", status),
			Link:    "/reports/" + r.ID.String(),
		})
		if err != nil {
			s.logger.Error("failed to notify reporter",
				slog.String("report", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return r, nil
}

func (s *ModerationService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.reports.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("report deleted", slog.String("id", id.String()))
	return nil
}

func (s *ModerationService) Stats(ctx context.Context, f repository.ReportFilter) (*model.ReportStats, error) {
	return s.reports.Stats(ctx, f)
}
