package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct-message thread between two users.
//
// The pair is stored ordered (ParticipantA < ParticipantB) so that one pair
// of users has at most one conversation regardless of who wrote first.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	ParticipantA  uuid.UUID  `json:"participantA"`
	ParticipantB  uuid.UUID  `json:"participantB"`
	Subject       string     `json:"subject"`
	IsArchived    bool       `json:"isArchived"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	LastMessage *Message `json:"lastMessage,omitempty"`
}

// Has reports whether user takes part in the conversation.
func (c *Conversation) Has(user uuid.UUID) bool {
	return c.ParticipantA == user || c.ParticipantB == user
}

// Other returns the participant that is not user.
func (c *Conversation) Other(user uuid.UUID) uuid.UUID {
	if c.ParticipantA == user {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// OrderedPair returns a and b with the smaller identifier first.
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// Message is one message in a conversation. A soft-deleted message keeps
// its row with DeletedAt set and an emptied body.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	SenderID       uuid.UUID  `json:"senderId"`
	ReceiverID     uuid.UUID  `json:"receiverId"`
	Body           string     `json:"body"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`

	Sender      *UserSummary `json:"sender,omitempty"`
	Receiver    *UserSummary `json:"receiver,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MessageInclude selects which related data a message query hydrates.
type MessageInclude uint8

const (
	IncludeAttachments MessageInclude = 1 << iota
	IncludeParticipants
)

func (i MessageInclude) Has(flag MessageInclude) bool { return i&flag != 0 }

// Attachment is a file attached to a message. The bytes live in object
// storage under StorageKey; only metadata is kept here.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	MessageID   uuid.UUID `json:"messageId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	StorageKey  string    `json:"storageKey"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Draft is an unsent message. Version increases on every save and guards
// against two editors overwriting each other.
type Draft struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"userId"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	RecipientID    *uuid.UUID `json:"recipientId,omitempty"`
	Body           string     `json:"body"`
	Version        int32      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// MessageStats aggregates messages matching a filter.
type MessageStats struct {
	Total           int64 `json:"total"`
	Unread          int64 `json:"unread"`
	Deleted         int64 `json:"deleted"`
	WithAttachments int64 `json:"withAttachments"`
	AttachmentBytes int64 `json:"attachmentBytes"`
}
