// Package repository defines the storage contracts the services depend on.
//
// Each entity gets a typed filter (every field optional; nil or empty means
// "not filtering on this"), a closed SortSet of sort tokens, and an
// interface. The SQL lives in repository/sqlstore; services and handlers see
// only this package, so tests can swap in hand-written mocks.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
)

// Repositories bundles one implementation of every repository, built once at
// startup and handed to the services.
type Repositories struct {
	Users                UserRepository
	Reports              ReportRepository
	Conversations        ConversationRepository
	Messages             MessageRepository
	Attachments          AttachmentRepository
	Drafts               DraftRepository
	Notifications        NotificationRepository
	NotificationSettings NotificationSettingRepository
	AccessLogs           AccessLogRepository
}

// TimeRange bounds a timestamp column; either end may be nil.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Active reports whether at least one bound is set.
func (r TimeRange) Active() bool { return r.From != nil || r.To != nil }

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// =========================================================================
// COMMENT REPORTS
// =========================================================================

// ReportFilter selects comment reports.
type ReportFilter struct {
	Status     *model.ReportStatus
	Statuses   []model.ReportStatus
	Reason     *model.ReportReason
	CommentID  *uuid.UUID
	SnippetID  *uuid.UUID
	ReporterID *uuid.UUID
	HandledBy  *uuid.UUID
	Created    TimeRange
	Search     string // substring of details
	// HighPriority selects (true) or excludes (false) reports that need
	// attention: several reports on the same comment, or pending too long.
	HighPriority *bool
}

// Report sort tokens.
const (
	ReportSortCreated  = "created"
	ReportSortUpdated  = "updated"
	ReportSortStatus   = "status"
	ReportSortReason   = "reason"
	ReportSortHandled  = "handled"
	ReportSortPriority = "priority"
)

var ReportSorts = query.SortSet{
	Default: query.Sort{Token: ReportSortCreated, Direction: query.Descending},
	Tokens: []string{ReportSortCreated, ReportSortUpdated, ReportSortStatus,
		ReportSortReason, ReportSortHandled, ReportSortPriority},
}

// HandleReport is a moderator's decision on a report.
type HandleReport struct {
	Status    model.ReportStatus
	HandlerID uuid.UUID
	Note      *string
	HandledAt time.Time
}

type ReportRepository interface {
	Create(ctx context.Context, r *model.CommentReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.CommentReport, error)
	List(ctx context.Context, f ReportFilter, s query.Sort, p query.PageRequest) (query.PageResult[model.CommentReport], error)
	Handle(ctx context.Context, id uuid.UUID, h HandleReport) (*model.CommentReport, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, f ReportFilter) (*model.ReportStats, error)
}

// =========================================================================
// CONVERSATIONS, MESSAGES, ATTACHMENTS, DRAFTS
// =========================================================================

type ConversationFilter struct {
	Participant *uuid.UUID
	Archived    *bool
	LastMessage TimeRange
	Search      string // substring of subject
}

const (
	ConversationSortLastMessage = "last_message"
	ConversationSortCreated     = "created"
	ConversationSortSubject     = "subject"
)

var ConversationSorts = query.SortSet{
	Default: query.Sort{Token: ConversationSortLastMessage, Direction: query.Descending},
	Tokens:  []string{ConversationSortLastMessage, ConversationSortCreated, ConversationSortSubject},
}

type ConversationRepository interface {
	// GetOrCreate returns the conversation between a and b, creating it when
	// it does not exist. The order of a and b does not matter.
	GetOrCreate(ctx context.Context, a, b uuid.UUID, subject string) (*model.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	List(ctx context.Context, f ConversationFilter, s query.Sort, p query.PageRequest) (query.PageResult[model.Conversation], error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	// Delete removes the conversation with its messages and attachments.
	Delete(ctx context.Context, id uuid.UUID) error
}

type MessageFilter struct {
	ConversationID *uuid.UUID
	SenderID       *uuid.UUID
	ReceiverID     *uuid.UUID
	IsRead         *bool
	IncludeDeleted bool
	HasAttachments *bool
	Created        TimeRange
	Search         string // substring of body
}

const (
	MessageSortCreated = "created"
	MessageSortRead    = "read"
)

var MessageSorts = query.SortSet{
	Default: query.Sort{Token: MessageSortCreated, Direction: query.Descending},
	Tokens:  []string{MessageSortCreated, MessageSortRead},
}

type MessageRepository interface {
	// Send stores msg and its attachments and bumps the conversation's last
	// message time, all in one transaction.
	Send(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id uuid.UUID, include model.MessageInclude) (*model.Message, error)
	List(ctx context.Context, f MessageFilter, s query.Sort, p query.PageRequest, include model.MessageInclude) (query.PageResult[model.Message], error)
	// MarkRead marks every unread message in conversation addressed to
	// reader as read and returns how many changed.
	MarkRead(ctx context.Context, conversation, reader uuid.UUID, at time.Time) (int64, error)
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	UnreadCount(ctx context.Context, user uuid.UUID) (int64, error)
	Stats(ctx context.Context, f MessageFilter) (*model.MessageStats, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *model.Attachment) error
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]model.Attachment, error)
	// ListByMessages loads the attachments of many messages with one query.
	ListByMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]model.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type DraftFilter struct {
	UserID         *uuid.UUID
	ConversationID *uuid.UUID
	Updated        TimeRange
	Search         string
}

const (
	DraftSortUpdated = "updated"
	DraftSortCreated = "created"
)

var DraftSorts = query.SortSet{
	Default: query.Sort{Token: DraftSortUpdated, Direction: query.Descending},
	Tokens:  []string{DraftSortUpdated, DraftSortCreated},
}

type DraftRepository interface {
	// Save inserts d when d.Version is 0, otherwise updates it if the stored
	// version still equals d.Version. On success d.Version is incremented;
	// a stale version fails with apperror.ErrConflict.
	Save(ctx context.Context, d *model.Draft) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Draft, error)
	List(ctx context.Context, f DraftFilter, s query.Sort, p query.PageRequest) (query.PageResult[model.Draft], error)
	// Delete removes user's draft id; someone else's draft is not found.
	Delete(ctx context.Context, user, id uuid.UUID) error
}

// =========================================================================
// NOTIFICATIONS
// =========================================================================

type NotificationFilter struct {
	UserID  *uuid.UUID
	ActorID *uuid.UUID
	Kinds   []model.NotificationKind
	IsRead  *bool
	Created TimeRange
}

const (
	NotificationSortCreated = "created"
	NotificationSortKind    = "kind"
)

var NotificationSorts = query.SortSet{
	Default: query.Sort{Token: NotificationSortCreated, Direction: query.Descending},
	Tokens:  []string{NotificationSortCreated, NotificationSortKind},
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// CreateBatch stores all notifications or none.
	CreateBatch(ctx context.Context, ns []*model.Notification) error
	List(ctx context.Context, f NotificationFilter, s query.Sort, p query.PageRequest) (query.PageResult[model.Notification], error)
	MarkRead(ctx context.Context, user uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, user uuid.UUID, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, user uuid.UUID) (int64, error)
	Delete(ctx context.Context, user, id uuid.UUID) error
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type NotificationSettingRepository interface {
	// Get returns the stored setting or apperror.ErrNotFound.
	Get(ctx context.Context, user uuid.UUID, kind model.NotificationKind) (*model.NotificationSetting, error)
	ListByUser(ctx context.Context, user uuid.UUID) ([]model.NotificationSetting, error)
	Upsert(ctx context.Context, s *model.NotificationSetting) error
	Delete(ctx context.Context, user uuid.UUID, kind model.NotificationKind) error
}

// =========================================================================
// ACCESS LOGS
// =========================================================================

type AccessLogFilter struct {
	UserID      *uuid.UUID
	Method      *string
	Path        string // substring of the request path
	StatusMin   *int32
	StatusMax   *int32
	MinDuration *time.Duration
	Created     TimeRange
}

const (
	AccessLogSortCreated  = "created"
	AccessLogSortDuration = "duration"
	AccessLogSortStatus   = "status"
)

var AccessLogSorts = query.SortSet{
	Default: query.Sort{Token: AccessLogSortCreated, Direction: query.Descending},
	Tokens:  []string{AccessLogSortCreated, AccessLogSortDuration, AccessLogSortStatus},
}

type AccessLogRepository interface {
	Record(ctx context.Context, l *model.AccessLog) error
	List(ctx context.Context, f AccessLogFilter, s query.Sort, p query.PageRequest) (query.PageResult[model.AccessLog], error)
	Stats(ctx context.Context, f AccessLogFilter) (*model.AccessLogStats, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}
