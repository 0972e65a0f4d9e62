package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// MessagingService handles direct messages between two users.
//
// ACCESS RULE:
// Only the two participants of a conversation may read it, send into it or
// change it. Everyone else gets apperror.ErrNotFound, the same answer as for
// an ID that does not exist.
type MessagingService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	drafts        repository.DraftRepository
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time
}

func NewMessagingService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	drafts repository.DraftRepository,
	notifier Notifier,
	logger *slog.Logger,
) *MessagingService {
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		drafts:        drafts,
		notifier:      notifier,
		logger:        logger,
		now:           utcNow,
	}
}

// NewMessage is what a user submits when sending a message. DraftID, when
// set, names the draft the message was written in; it is deleted once the
// message is stored.
type NewMessage struct {
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Subject     string
	Body        string
	Attachments []model.Attachment
	DraftID     *uuid.UUID
}

func validateAttachments(as []model.Attachment) error {
	if len(as) > MaxAttachments {
		return apperror.ValidationFailed("attachments",
			fmt.Sprintf("a message can have at most %d attachments", MaxAttachments))
	}
	var total int64
	for i, a := range as {
		if strings.TrimSpace(a.FileName) == "" || a.StorageKey == "" {
			return apperror.ValidationFailed("attachments",
				fmt.Sprintf("attachment %d needs a file name and a storage key", i))
		}
		if a.SizeBytes < 0 {
			return apperror.ValidationFailed("attachments", fmt.Sprintf("attachment %d has a negative size", i))
		}
		total += a.SizeBytes
	}
	if total > MaxAttachmentBytes {
		return apperror.ValidationFailed("attachments",
			fmt.Sprintf("attachments must total %d bytes or less", MaxAttachmentBytes))
	}
	return nil
}

// Send delivers a message, creating the conversation on first contact.
func (s *MessagingService) Send(ctx context.Context, in NewMessage) (*model.Message, error) {
	if in.SenderID == in.RecipientID {
		return nil, apperror.ValidationFailed("recipientId", "cannot send a message to yourself")
	}
	body, err := text("body", in.Body, MaxMessageLength, len(in.Attachments) == 0)
	if err != nil {
		return nil, err
	}
	subject, err := text("subject", in.Subject, MaxSubjectLength, false)
	if err != nil {
		return nil, err
	}
	if err := validateAttachments(in.Attachments); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetOrCreate(ctx, in.SenderID, in.RecipientID, subject)
	if err != nil {
		return nil, fmt.Errorf("opening conversation: %w", err)
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		ReceiverID:     in.RecipientID,
		Body:           body,
		Attachments:    in.Attachments,
	}
	if err := s.messages.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send message",
			slog.String("conversation", conv.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("sending message: %w", err)
	}
	s.logger.Info("message sent",
		slog.String("id", msg.ID.String()),
		slog.String("conversation", conv.ID.String()),
		slog.Int("attachments", len(msg.Attachments)),
	)

	if in.DraftID != nil {
		err := s.drafts.Delete(ctx, in.SenderID, *in.DraftID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("failed to delete sent draft",
				slog.String("draft", in.DraftID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := s.notifier.Notify(ctx, &model.Notification{
		UserID:  in.RecipientID,
		ActorID: &in.SenderID,
		Kind:    model.NotifyMessage,
		Title:   "New message",
		Body:    preview(body),
		Link:    "/conversations/" + conv.ID.String(),
	}); err != nil {
		s.logger.Error("failed to notify recipient",
			slog.String("message", msg.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return msg, nil
}

// preview shortens a message body for a notification.
func preview(body string) string {
	const n = 80
	r := []rune(body)
	if len(r) <= n {
		return body
	}
	return string(r[:n]) + "…"
}

// conversation loads id and checks that viewer takes part in it.
func (s *MessagingService) conversation(ctx context.Context, id, viewer uuid.UUID) (*model.Conversation, error) {
	c, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Has(viewer) {
		return nil, apperror.NotFound("conversation", id.String())
	}
	return c, nil
}

func (s *MessagingService) Conversation(ctx context.Context, id, viewer uuid.UUID) (*model.Conversation, error) {
	return s.conversation(ctx, id, viewer)
}

// Conversations lists viewer's conversations; the participant filter is
// always viewer.
func (s *MessagingService) Conversations(ctx context.Context, viewer uuid.UUID, f repository.ConversationFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.Conversation], error) {
	f.Participant = &viewer
	return s.conversations.List(ctx, f, sort, p)
}

// Messages lists one conversation's messages for viewer.
func (s *MessagingService) Messages(ctx context.Context, conversation, viewer uuid.UUID, f repository.MessageFilter, sort query.Sort, p query.PageRequest, include model.MessageInclude) (query.PageResult[model.Message], error) {
	if _, err := s.conversation(ctx, conversation, viewer); err != nil {
		return query.PageResult[model.Message]{}, err
	}
	f.ConversationID = &conversation
	return s.messages.List(ctx, f, sort, p, include)
}

// MarkRead marks everything viewer received in the conversation as read.
func (s *MessagingService) MarkRead(ctx context.Context, conversation, viewer uuid.UUID) (int64, error) {
	if _, err := s.conversation(ctx, conversation, viewer); err != nil {
		return 0, err
	}
	return s.messages.MarkRead(ctx, conversation, viewer, s.now())
}

func (s *MessagingService) UnreadCount(ctx context.Context, user uuid.UUID) (int64, error) {
	return s.messages.UnreadCount(ctx, user)
}

// DeleteMessage soft-deletes a message. Only its sender may do that; the
// receiver is refused and anyone else is told the message does not exist.
func (s *MessagingService) DeleteMessage(ctx context.Context, id, user uuid.UUID) error {
	m, err := s.messages.GetByID(ctx, id, 0)
	if err != nil {
		return err
	}
	if m.SenderID != user && m.ReceiverID != user {
		return apperror.NotFound("message", id.String())
	}
	if m.SenderID != user {
		return apperror.Forbidden("only the sender can delete a message")
	}
	if err := s.messages.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("message deleted", slog.String("id", id.String()))
	return nil
}

func (s *MessagingService) Archive(ctx context.Context, conversation, viewer uuid.UUID, archived bool) error {
	if _, err := s.conversation(ctx, conversation, viewer); err != nil {
		return err
	}
	return s.conversations.SetArchived(ctx, conversation, archived)
}

// DeleteConversation removes the conversation for both participants.
func (s *MessagingService) DeleteConversation(ctx context.Context, conversation, viewer uuid.UUID) error {
	if _, err := s.conversation(ctx, conversation, viewer); err != nil {
		return err
	}
	if err := s.conversations.Delete(ctx, conversation); err != nil {
		return err
	}
	s.logger.Info("conversation deleted", slog.String("id", conversation.String()))
	return nil
}

// SaveDraft stores d for its owner. d.Version must be the version the caller
// last read (0 for a new draft); a stale version is a conflict.
func (s *MessagingService) SaveDraft(ctx context.Context, d *model.Draft) error {
	body, err := text("body", d.Body, MaxMessageLength, false)
	if err != nil {
		return err
	}
	d.Body = body
	if d.Version > 0 {
		stored, err := s.drafts.GetByID(ctx, d.ID)
		if err != nil {
			return err
		}
		if stored.UserID != d.UserID {
			return apperror.NotFound("draft", d.ID.String())
		}
	}
	if d.ConversationID != nil {
		if _, err := s.conversation(ctx, *d.ConversationID, d.UserID); err != nil {
			return err
		}
	}
	return s.drafts.Save(ctx, d)
}

func (s *MessagingService) Drafts(ctx context.Context, user uuid.UUID, f repository.DraftFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.Draft], error) {
	f.UserID = &user
	return s.drafts.List(ctx, f, sort, p)
}

func (s *MessagingService) Stats(ctx context.Context, f repository.MessageFilter) (*model.MessageStats, error) {
	return s.messages.Stats(ctx, f)
}
