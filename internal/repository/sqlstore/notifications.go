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

const (
	notificationColumns = `n.id, n.user_id, n.actor_id, n.kind, n.title, n.body, n.link, n.is_read, n.read_at, n.created_at`
	notificationFrom    = `notifications n LEFT JOIN users act ON act.id = n.actor_id`

	// notificationBatch caps the rows per INSERT so a large fan-out stays
	// under every backend's bind-parameter limit.
	notificationBatch = 200
)

var notificationSelect = notificationColumns + ", " + userColumns("act", "act")

// NotificationStore is the notification repository.
type NotificationStore struct {
	*Store
	filter *query.Builder
	sorter *query.Sorter
}

var _ repository.NotificationRepository = (*NotificationStore)(nil)

func newNotificationStore(s *Store) *NotificationStore {
	return &NotificationStore{
		Store: s,
		filter: s.builder(
			query.Field{Name: "user_id", Column: "n.user_id", Op: query.OpEquals},
			query.Field{Name: "actor_id", Column: "n.actor_id", Op: query.OpEquals},
			query.Field{Name: "kinds", Column: "n.kind", Op: query.OpIn},
			query.Field{Name: "is_read", Column: "n.is_read", Op: query.OpFlag},
			query.Field{Name: "created", Column: "n.created_at", Op: query.OpRange},
		),
		sorter: query.NewSorter(repository.NotificationSorts, map[string]string{
			repository.NotificationSortCreated: "n.created_at",
			repository.NotificationSortKind:    "n.kind",
		}, "n.created_at", "n.id"),
	}
}

func notificationFilter(f repository.NotificationFilter) query.Filter {
	q := query.Filter{}
	if f.UserID != nil {
		q.Set("user_id", query.Equals(f.UserID))
	}
	if f.ActorID != nil {
		q.Set("actor_id", query.Equals(f.ActorID))
	}
	if f.Kinds != nil {
		q.Set("kinds", query.OneOf(f.Kinds...))
	}
	if f.IsRead != nil {
		q.Set("is_read", query.Flag(*f.IsRead))
	}
	if c, ok := timeRange(f.Created); ok {
		q.Set("created", c)
	}
	return q
}

func scanNotification(r *query.Row) model.Notification {
	return model.Notification{
		ID:        r.ID("id"),
		UserID:    r.ID("user_id"),
		ActorID:   r.OptID("actor_id"),
		Kind:      model.NotificationKind(r.String("kind")),
		Title:     r.String("title"),
		Body:      r.String("body"),
		Link:      r.String("link"),
		IsRead:    r.Bool("is_read"),
		ReadAt:    r.OptTime("read_at"),
		CreatedAt: r.Time("created_at"),
		Actor:     userSummary(r, "act"),
	}
}

func (s *NotificationStore) prepare(n *model.Notification, now time.Time) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = now
	n.IsRead, n.ReadAt = false, nil
}

func insertNotifications(ctx context.Context, sess *query.Session, ns []*model.Notification) error {
	const width = 8
	args := make([]any, 0, len(ns)*width)
	for _, n := range ns {
		args = append(args, n.ID, n.UserID, n.ActorID, n.Kind, n.Title, n.Body, n.Link, n.CreatedAt)
	}
	_, err := sess.Exec(ctx, "insert notifications",
		`INSERT INTO notifications (id, user_id, actor_id, kind, title, body, link, created_at)
		 VALUES `+query.InsertValues(len(ns), width), args...)
	return err
}

func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) error {
	s.prepare(n, s.timestamp())
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		return insertNotifications(ctx, sess, []*model.Notification{n})
	})
	if err != nil {
		return fmt.Errorf("sqlstore: creating notification: %w", err)
	}
	return nil
}

// CreateBatch inserts ns in chunks inside one transaction.
func (s *NotificationStore) CreateBatch(ctx context.Context, ns []*model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	now := s.timestamp()
	for _, n := range ns {
		s.prepare(n, now)
	}

	err := s.exec.InTx(ctx, func(ctx context.Context, sess *query.Session) error {
		for start := 0; start < len(ns); start += notificationBatch {
			end := min(start+notificationBatch, len(ns))
			if err := insertNotifications(ctx, sess, ns[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: creating %d notifications: %w", len(ns), err)
	}
	return nil
}

func (s *NotificationStore) List(ctx context.Context, f repository.NotificationFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.Notification], error) {
	where, err := s.filter.Build(notificationFilter(f))
	if err != nil {
		return query.PageResult[model.Notification]{}, err
	}

	var out query.PageResult[model.Notification]
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		out, err = list(ctx, sess, query.Query{
			Name:    "list notifications",
			Select:  notificationSelect,
			From:    notificationFrom,
			Where:   where,
			OrderBy: s.sorter.Resolve(sort),
		}, p, scanNotification)
		return err
	})
	if err != nil {
		return query.PageResult[model.Notification]{}, fmt.Errorf("sqlstore: listing notifications: %w", err)
	}
	return out, nil
}

// MarkRead marks the given notifications of user as read. IDs that belong to
// someone else or are already read are skipped, not reported.
func (s *NotificationStore) MarkRead(ctx context.Context, user uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	var n int64
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		n, err = sess.ExecIn(ctx, "mark notifications read",
			`UPDATE notifications SET is_read = ?, read_at = ?
			 WHERE user_id = ? AND is_read = ? AND id IN (?)`,
			true, at.UTC().Truncate(time.Microsecond), user, false, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: marking notifications read: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, user uuid.UUID, at time.Time) (int64, error) {
	n, err := s.exec1(ctx, "mark all notifications read",
		`UPDATE notifications SET is_read = ?, read_at = ? WHERE user_id = ? AND is_read = ?`,
		true, at.UTC().Truncate(time.Microsecond), user, false)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: marking all notifications read: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, user uuid.UUID) (int64, error) {
	var n int64
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		n, err = sess.Count(ctx, "unread notifications",
			`SELECT COUNT(*) AS total FROM notifications WHERE user_id = ? AND is_read = ?`, user, false)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting unread notifications: %w", err)
	}
	return n, nil
}

// Delete removes one of user's notifications. Another user's notification
// is reported as not found.
func (s *NotificationStore) Delete(ctx context.Context, user, id uuid.UUID) error {
	n, err := s.exec1(ctx, "delete notification",
		`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, user)
	if err == nil {
		err = requireAffected(n, "notification", id)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: deleting notification: %w", err)
	}
	return nil
}

// PurgeBefore deletes every notification created before the cutoff.
func (s *NotificationStore) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.exec1(ctx, "purge notifications", `DELETE FROM notifications WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purging notifications: %w", err)
	}
	s.logger.Info("notifications purged", slog.Time("before", before), slog.Int64("deleted", n))
	return n, nil
}
