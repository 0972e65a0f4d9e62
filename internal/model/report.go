package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ReportStatus is the moderation state of a comment report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewing ReportStatus = "reviewing"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewing, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// Closed reports whether a moderator has finished with the report.
func (s ReportStatus) Closed() bool {
	return s == ReportResolved || s == ReportDismissed
}

// reportSources maps a target status to the statuses a report may leave to
// reach it. Pending is never a target and closed reports have no way out.
var reportSources = map[ReportStatus][]ReportStatus{
	ReportReviewing: {ReportPending},
	ReportResolved:  {ReportPending, ReportReviewing},
	ReportDismissed: {ReportPending, ReportReviewing},
}

// Sources lists the statuses from which a report may move to s.
func (s ReportStatus) Sources() []ReportStatus {
	return reportSources[s]
}

// CanMoveTo reports whether a report in s may be moved to next.
func (s ReportStatus) CanMoveTo(next ReportStatus) bool {
	return slices.Contains(next.Sources(), s)
}

// ReportReason is why a user flagged a comment.
type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonHarassment    ReportReason = "harassment"
	ReasonOffTopic      ReportReason = "off_topic"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonHarassment, ReasonOffTopic, ReasonInappropriate, ReasonOther:
		return true
	}
	return false
}

// CommentReport is one user's complaint about a comment on a snippet.
//
// HandledBy, HandlerNote and HandledAt are pointers because "never handled"
// must stay distinguishable from any real value. Reporter and Handler are
// filled from joins when the query asks for them.
type CommentReport struct {
	ID          uuid.UUID    `json:"id"`
	CommentID   uuid.UUID    `json:"commentId"`
	SnippetID   uuid.UUID    `json:"snippetId"`
	ReporterID  uuid.UUID    `json:"reporterId"`
	Reason      ReportReason `json:"reason"`
	Details     string       `json:"details"`
	Status      ReportStatus `json:"status"`
	HandledBy   *uuid.UUID   `json:"handledBy,omitempty"`
	HandlerNote *string      `json:"handlerNote,omitempty"`
	HandledAt   *time.Time   `json:"handledAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`

	// ReportCount is how many reports exist for the same comment.
	ReportCount int64 `json:"reportCount"`

	Reporter *UserSummary `json:"reporter,omitempty"`
	Handler  *UserSummary `json:"handler,omitempty"`
}

// ReportStats aggregates reports matching a filter.
type ReportStats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Reviewing    int64 `json:"reviewing"`
	Resolved     int64 `json:"resolved"`
	Dismissed    int64 `json:"dismissed"`
	HighPriority int64 `json:"highPriority"`
	// AvgHandlingTime is the mean of handled_at - created_at over handled
	// reports, zero when none are handled.
	AvgHandlingTime time.Duration `json:"avgHandlingTime"`
}
