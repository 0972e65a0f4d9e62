package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind groups notifications for display and for settings.
type NotificationKind string

const (
	NotifyCommentReply NotificationKind = "comment_reply"
	NotifyMention      NotificationKind = "mention"
	NotifyMessage      NotificationKind = "message"
	NotifyReportUpdate NotificationKind = "report_update"
	NotifySnippetFork  NotificationKind = "snippet_fork"
)

// NotificationKinds lists every kind in display order.
func NotificationKinds() []NotificationKind {
	return []NotificationKind{NotifyCommentReply, NotifyMention, NotifyMessage, NotifyReportUpdate, NotifySnippetFork}
}

func (k NotificationKind) Valid() bool {
	switch k {
	case NotifyCommentReply, NotifyMention, NotifyMessage, NotifyReportUpdate, NotifySnippetFork:
		return true
	}
	return false
}

// Notification is one item in a user's inbox. ActorID is nil for system
// notifications.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"userId"`
	ActorID   *uuid.UUID       `json:"actorId,omitempty"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Link      string           `json:"link"`
	IsRead    bool             `json:"isRead"`
	ReadAt    *time.Time       `json:"readAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`

	Actor *UserSummary `json:"actor,omitempty"`
}

// NotificationSetting is one user's delivery preferences for one kind.
//
// DigestInterval batches notifications instead of sending each one; nil
// means deliver immediately. QuietStart and QuietEnd are offsets from
// midnight UTC; when both are set, nothing is pushed between them.
type NotificationSetting struct {
	ID             uuid.UUID        `json:"id"`
	UserID         uuid.UUID        `json:"userId"`
	Kind           NotificationKind `json:"kind"`
	InApp          bool             `json:"inApp"`
	Email          bool             `json:"email"`
	Push           bool             `json:"push"`
	DigestInterval *time.Duration   `json:"digestInterval,omitempty"`
	QuietStart     *time.Duration   `json:"quietStart,omitempty"`
	QuietEnd       *time.Duration   `json:"quietEnd,omitempty"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// DefaultSetting is what a user gets for kind before saving preferences.
func DefaultSetting(user uuid.UUID, kind NotificationKind) NotificationSetting {
	return NotificationSetting{UserID: user, Kind: kind, InApp: true, Email: true}
}

// InQuietHours reports whether t falls inside the quiet window. A window
// whose end is before its start wraps past midnight.
func (s *NotificationSetting) InQuietHours(t time.Time) bool {
	if s.QuietStart == nil || s.QuietEnd == nil {
		return false
	}
	t = t.UTC()
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	start, end := *s.QuietStart, *s.QuietEnd
	if start <= end {
		return offset >= start && offset < end
	}
	return offset >= start || offset < end
}
