package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// Notifier delivers one notification. The moderation and messaging services
// depend on this instead of *NotificationService so they can be tested on
// their own.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) (bool, error)
}

// NotificationService owns inbox reads and writes and the per-kind
// delivery settings.
type NotificationService struct {
	notifications repository.NotificationRepository
	settings      repository.NotificationSettingRepository
	logger        *slog.Logger
	now           func() time.Time
}

var _ Notifier = (*NotificationService)(nil)

func NewNotificationService(notifications repository.NotificationRepository, settings repository.NotificationSettingRepository, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		settings:      settings,
		logger:        logger,
		now:           utcNow,
	}
}

// setting returns the stored setting for (user, kind) or the default when
// the user never saved one.
func (s *NotificationService) setting(ctx context.Context, user uuid.UUID, kind model.NotificationKind) (model.NotificationSetting, error) {
	st, err := s.settings.Get(ctx, user, kind)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.DefaultSetting(user, kind), nil
	}
	if err != nil {
		return model.NotificationSetting{}, err
	}
	return *st, nil
}

func validateNotification(n *model.Notification) error {
	if !n.Kind.Valid() {
		return apperror.ValidationFailed("kind", fmt.Sprintf("unknown notification kind %q", n.Kind))
	}
	title, err := text("title", n.Title, MaxNotificationTitle, true)
	if err != nil {
		return err
	}
	n.Title = title
	if n.ActorID != nil && *n.ActorID == n.UserID {
		return apperror.ValidationFailed("actorId", "users are not notified about their own actions")
	}
	return nil
}

// Notify stores n in the user's inbox unless the user turned in-app delivery
// off for n.Kind. It reports whether the notification was stored.
func (s *NotificationService) Notify(ctx context.Context, n *model.Notification) (bool, error) {
	if err := validateNotification(n); err != nil {
		return false, err
	}
	st, err := s.setting(ctx, n.UserID, n.Kind)
	if err != nil {
		return false, fmt.Errorf("loading notification setting: %w", err)
	}
	if !st.InApp {
		s.logger.Debug("notification muted",
			slog.String("user", n.UserID.String()),
			slog.String("kind", string(n.Kind)),
		)
		return false, nil
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return false, fmt.Errorf("creating notification: %w", err)
	}
	return true, nil
}

// NotifyMany is Notify for a fan-out: the muted recipients are dropped and
// the rest are stored in one batch. It returns how many were stored.
func (s *NotificationService) NotifyMany(ctx context.Context, ns []*model.Notification) (int, error) {
	keep := make([]*model.Notification, 0, len(ns))
	muted := map[string]bool{}
	for _, n := range ns {
		if err := validateNotification(n); err != nil {
			return 0, err
		}
		key := n.UserID.String() + "/" + string(n.Kind)
		off, seen := muted[key]
		if !seen {
			st, err := s.setting(ctx, n.UserID, n.Kind)
			if err != nil {
				return 0, fmt.Errorf("loading notification setting: %w", err)
			}
			off = !st.InApp
			muted[key] = off
		}
		if !off {
			keep = append(keep, n)
		}
	}
	if err := s.notifications.CreateBatch(ctx, keep); err != nil {
		return 0, fmt.Errorf("creating notifications: %w", err)
	}
	s.logger.Info("notifications fanned out",
		slog.Int("requested", len(ns)),
		slog.Int("stored", len(keep)),
	)
	return len(keep), nil
}

// List returns user's inbox page. The filter's UserID is always replaced by
// user so nobody reads someone else's notifications.
func (s *NotificationService) List(ctx context.Context, user uuid.UUID, f repository.NotificationFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.Notification], error) {
	f.UserID = &user
	return s.notifications.List(ctx, f, sort, p)
}

func (s *NotificationService) MarkRead(ctx context.Context, user uuid.UUID, ids []uuid.UUID) (int64, error) {
	return s.notifications.MarkRead(ctx, user, ids, s.now())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, user uuid.UUID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, user, s.now())
}

func (s *NotificationService) UnreadCount(ctx context.Context, user uuid.UUID) (int64, error) {
	return s.notifications.UnreadCount(ctx, user)
}

func (s *NotificationService) Delete(ctx context.Context, user, id uuid.UUID) error {
	return s.notifications.Delete(ctx, user, id)
}

// Settings returns one setting per kind, filling the kinds the user never
// saved with defaults.
func (s *NotificationService) Settings(ctx context.Context, user uuid.UUID) ([]model.NotificationSetting, error) {
	stored, err := s.settings.ListByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	byKind := make(map[model.NotificationKind]model.NotificationSetting, len(stored))
	for _, st := range stored {
		byKind[st.Kind] = st
	}

	kinds := model.NotificationKinds()
	out := make([]model.NotificationSetting, 0, len(kinds))
	for _, k := range kinds {
		st, ok := byKind[k]
		if !ok {
			st = model.DefaultSetting(user, k)
		}
		out = append(out, st)
	}
	return out, nil
}

// UpdateSetting validates and stores st.
//
// QUIET HOURS:
// Both ends are offsets from midnight and must be set together. Equal ends
// would describe an empty window, which is rejected rather than silently
// ignored.
func (s *NotificationService) UpdateSetting(ctx context.Context, st *model.NotificationSetting) error {
	if !st.Kind.Valid() {
		return apperror.ValidationFailed("kind", fmt.Sprintf("unknown notification kind %q", st.Kind))
	}
	if st.DigestInterval != nil && *st.DigestInterval < time.Minute {
		return apperror.ValidationFailed("digestInterval", "digest interval must be at least one minute")
	}
	if (st.QuietStart == nil) != (st.QuietEnd == nil) {
		return apperror.ValidationFailed("quietHours", "quiet hours need both a start and an end")
	}
	if st.QuietStart != nil {
		for _, d := range []time.Duration{*st.QuietStart, *st.QuietEnd} {
			if d < 0 || d >= 24*time.Hour {
				return apperror.ValidationFailed("quietHours", "quiet hours must be within one day")
			}
		}
		if *st.QuietStart == *st.QuietEnd {
			return apperror.ValidationFailed("quietHours", "quiet hours must not start and end at the same time")
		}
	}
	if err := s.settings.Upsert(ctx, st); err != nil {
		return err
	}
	s.logger.Info("notification setting saved",
		slog.String("user", st.UserID.String()),
		slog.String("kind", string(st.Kind)),
	)
	return nil
}

// ResetSetting drops the user's stored setting so the default applies again.
// Resetting a kind that was never saved is not an error.
func (s *NotificationService) ResetSetting(ctx context.Context, user uuid.UUID, kind model.NotificationKind) error {
	err := s.settings.Delete(ctx, user, kind)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	return err
}

// Purge deletes notifications older than age.
func (s *NotificationService) Purge(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, apperror.ValidationFailed("age", "age must be positive")
	}
	return s.notifications.PurgeBefore(ctx, s.now().Add(-age))
}
