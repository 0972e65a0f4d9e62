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

const settingColumns = `id, user_id, kind, in_app, email, push, digest_interval, quiet_start, quiet_end, updated_at`

// SettingStore is the notification-setting repository. Get is the only
// read-through cached lookup in the store: it runs for every notification
// that is delivered.
type SettingStore struct {
	*Store
}

var _ repository.NotificationSettingRepository = (*SettingStore)(nil)

func settingKey(user uuid.UUID, kind model.NotificationKind) string {
	return "notification_setting:" + user.String() + ":" + string(kind)
}

func scanSetting(r *query.Row) model.NotificationSetting {
	return model.NotificationSetting{
		ID:             r.ID("id"),
		UserID:         r.ID("user_id"),
		Kind:           model.NotificationKind(r.String("kind")),
		InApp:          r.Bool("in_app"),
		Email:          r.Bool("email"),
		Push:           r.Bool("push"),
		DigestInterval: r.OptDuration("digest_interval"),
		QuietStart:     r.OptDuration("quiet_start"),
		QuietEnd:       r.OptDuration("quiet_end"),
		UpdatedAt:      r.Time("updated_at"),
	}
}

// Get returns the stored setting. Cached values are copies, so a caller
// mutating the result never changes what the next caller sees.
func (s *SettingStore) Get(ctx context.Context, user uuid.UUID, kind model.NotificationKind) (*model.NotificationSetting, error) {
	setting, err := query.Cached(ctx, s.cache, settingKey(user, kind), s.cacheTTL, func() (model.NotificationSetting, error) {
		var out model.NotificationSetting
		err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
			var err error
			out, err = getOne(ctx, sess, "get notification setting",
				`SELECT `+settingColumns+` FROM notification_settings WHERE user_id = ? AND kind = ?`,
				scanSetting, user, kind)
			return err
		})
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting notification setting: %w",
			notFound(err, "notification setting", user))
	}
	return &setting, nil
}

func (s *SettingStore) ListByUser(ctx context.Context, user uuid.UUID) ([]model.NotificationSetting, error) {
	var out []model.NotificationSetting
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		rows, err := sess.Select(ctx, "list notification settings",
			`SELECT `+settingColumns+` FROM notification_settings WHERE user_id = ? ORDER BY kind`, user)
		if err != nil {
			return err
		}
		out, err = query.MapRows(rows, sess.Normalizer(), scanSetting)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing notification settings: %w", err)
	}
	return out, nil
}

// Upsert stores st as the user's setting for st.Kind, replacing any earlier
// one. st.ID is set to the stored row's ID, which an update keeps.
func (s *SettingStore) Upsert(ctx context.Context, st *model.NotificationSetting) error {
	if !st.Kind.Valid() {
		return apperror.ValidationFailed("kind", fmt.Sprintf("unknown notification kind %q", st.Kind))
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.UpdatedAt = s.timestamp()
	st.DigestInterval = canonicalDuration(st.DigestInterval)
	st.QuietStart = canonicalDuration(st.QuietStart)
	st.QuietEnd = canonicalDuration(st.QuietEnd)

	stmt := `INSERT INTO notification_settings (` + settingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` +
		s.dialect.Upsert([]string{"user_id", "kind"},
			[]string{"in_app", "email", "push", "digest_interval", "quiet_start", "quiet_end", "updated_at"})

	err := s.exec.InTx(ctx, func(ctx context.Context, sess *query.Session) error {
		if _, err := sess.Exec(ctx, "upsert notification setting", stmt,
			st.ID, st.UserID, st.Kind, st.InApp, st.Email, st.Push,
			st.DigestInterval, st.QuietStart, st.QuietEnd, st.UpdatedAt); err != nil {
			return err
		}
		stored, err := getOne(ctx, sess, "stored notification setting",
			`SELECT id FROM notification_settings WHERE user_id = ? AND kind = ?`,
			func(r *query.Row) uuid.UUID { return r.ID("id") }, st.UserID, st.Kind)
		if err != nil {
			return err
		}
		st.ID = stored
		return nil
	})
	s.cache.Delete(ctx, settingKey(st.UserID, st.Kind))
	if err != nil {
		return fmt.Errorf("sqlstore: saving notification setting: %w", err)
	}
	return nil
}

func (s *SettingStore) Delete(ctx context.Context, user uuid.UUID, kind model.NotificationKind) error {
	n, err := s.exec1(ctx, "delete notification setting",
		`DELETE FROM notification_settings WHERE user_id = ? AND kind = ?`, user, kind)
	s.cache.Delete(ctx, settingKey(user, kind))
	if err == nil {
		err = requireAffected(n, "notification setting", user)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: deleting notification setting: %w", err)
	}
	return nil
}

// canonicalDuration returns a copy of d at stored precision, so a setting
// handed back by Upsert equals the one the next Get reads.
func canonicalDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	c := query.CanonicalDuration(*d)
	return &c
}
