package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.receiver_id, m.body, m.is_read,
	m.read_at, m.edited_at, m.deleted_at, m.created_at`

// PARTICIPANT JOINS:
// Sender and receiver are one-to-one, so joining them inline cannot multiply
// message rows. They are only joined when the caller asks for them.
const participantJoins = `
	LEFT JOIN users snd ON snd.id = m.sender_id
	LEFT JOIN users rcv ON rcv.id = m.receiver_id`

var (
	deletedMessage = query.Condition{Name: "deleted", SQL: "m.deleted_at IS NOT NULL"}
	withAttachment = query.Condition{
		Name: "has_attachments",
		SQL:  "EXISTS (SELECT 1 FROM attachments a WHERE a.message_id = m.id)",
	}
)

// MessageStore is the message repository.
type MessageStore struct {
	*Store
	filter *query.Builder
	sorter *query.Sorter
}

var _ repository.MessageRepository = (*MessageStore)(nil)

func newMessageStore(s *Store) *MessageStore {
	return &MessageStore{
		Store: s,
		filter: s.builder(
			query.Field{Name: "conversation_id", Column: "m.conversation_id", Op: query.OpEquals},
			query.Field{Name: "sender_id", Column: "m.sender_id", Op: query.OpEquals},
			query.Field{Name: "receiver_id", Column: "m.receiver_id", Op: query.OpEquals},
			query.Field{Name: "is_read", Column: "m.is_read", Op: query.OpFlag},
			query.Field{Name: "deleted", Op: query.OpFlag, Condition: &deletedMessage},
			query.Field{Name: "has_attachments", Op: query.OpFlag, Condition: &withAttachment},
			query.Field{Name: "created", Column: "m.created_at", Op: query.OpRange},
			query.Field{Name: "search", Column: "m.body", Op: query.OpContains},
		),
		sorter: query.NewSorter(repository.MessageSorts, map[string]string{
			repository.MessageSortCreated: "m.created_at",
			repository.MessageSortRead:    "m.is_read",
		}, "m.created_at", "m.id"),
	}
}

func messageFilter(f repository.MessageFilter) query.Filter {
	q := query.Filter{}
	if f.ConversationID != nil {
		q.Set("conversation_id", query.Equals(f.ConversationID))
	}
	if f.SenderID != nil {
		q.Set("sender_id", query.Equals(f.SenderID))
	}
	if f.ReceiverID != nil {
		q.Set("receiver_id", query.Equals(f.ReceiverID))
	}
	if f.IsRead != nil {
		q.Set("is_read", query.Flag(*f.IsRead))
	}
	if !f.IncludeDeleted {
		q.Set("deleted", query.Flag(false))
	}
	if f.HasAttachments != nil {
		q.Set("has_attachments", query.Flag(*f.HasAttachments))
	}
	if c, ok := timeRange(f.Created); ok {
		q.Set("created", c)
	}
	if f.Search != "" {
		q.Set("search", query.Contains(f.Search))
	}
	return q
}

func scanMessage(r *query.Row) model.Message {
	return model.Message{
		ID:             r.ID("id"),
		ConversationID: r.ID("conversation_id"),
		SenderID:       r.ID("sender_id"),
		ReceiverID:     r.ID("receiver_id"),
		Body:           r.String("body"),
		IsRead:         r.Bool("is_read"),
		ReadAt:         r.OptTime("read_at"),
		EditedAt:       r.OptTime("edited_at"),
		DeletedAt:      r.OptTime("deleted_at"),
		CreatedAt:      r.Time("created_at"),
		Sender:         userSummary(r, "snd"),
		Receiver:       userSummary(r, "rcv"),
	}
}

// messageSource returns the select list and FROM clause for include.
func messageSource(include model.MessageInclude) (sel, from string) {
	sel, from = messageColumns, "messages m"
	if include.Has(model.IncludeParticipants) {
		sel += ", " + userColumns("snd", "snd") + ", " + userColumns("rcv", "rcv")
		from += participantJoins
	}
	return sel, from
}

// hydrate fills the one-to-many side of msgs with a single batched query.
func hydrate(ctx context.Context, sess *query.Session, msgs []model.Message, include model.MessageInclude) error {
	if !include.Has(model.IncludeAttachments) {
		return nil
	}
	ids := query.Keys(msgs, func(m model.Message) uuid.UUID { return m.ID })
	byMessage, err := loadAttachments(ctx, sess, ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Attachments = byMessage[msgs[i].ID]
	}
	return nil
}

// Send stores msg with its attachments and bumps the conversation, in one
// transaction. A missing conversation rolls everything back.
func (s *MessageStore) Send(ctx context.Context, msg *model.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = s.timestamp()
	msg.IsRead, msg.ReadAt, msg.DeletedAt = false, nil, nil
	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.MessageID = msg.ID
		a.CreatedAt = msg.CreatedAt
	}

	err := s.exec.InTx(ctx, func(ctx context.Context, sess *query.Session) error {
		n, err := sess.Exec(ctx, "bump conversation",
			`UPDATE conversations SET last_message_at = ?, updated_at = ? WHERE id = ?`,
			msg.CreatedAt, msg.CreatedAt, msg.ConversationID)
		if err != nil {
			return err
		}
		if err := requireAffected(n, "conversation", msg.ConversationID); err != nil {
			return err
		}

		if _, err := sess.Exec(ctx, "insert message",
			`INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, is_read, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body, false, msg.CreatedAt); err != nil {
			return err
		}
		return insertAttachments(ctx, sess, msg.Attachments)
	})
	if err != nil {
		return fmt.Errorf("sqlstore: sending message: %w", err)
	}
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, id uuid.UUID, include model.MessageInclude) (*model.Message, error) {
	sel, from := messageSource(include)

	var msg model.Message
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		msg, err = getOne(ctx, sess, "get message",
			`SELECT `+sel+` FROM `+from+` WHERE m.id = ?`, scanMessage, id)
		if err != nil {
			return err
		}
		msgs := []model.Message{msg}
		if err := hydrate(ctx, sess, msgs, include); err != nil {
			return err
		}
		msg = msgs[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting message: %w", notFound(err, "message", id))
	}
	return &msg, nil
}

// List returns a page of messages. Attachments for the whole page come from
// one IN query on the same connection as the page itself.
func (s *MessageStore) List(ctx context.Context, f repository.MessageFilter, sort query.Sort, p query.PageRequest, include model.MessageInclude) (query.PageResult[model.Message], error) {
	where, err := s.filter.Build(messageFilter(f))
	if err != nil {
		return query.PageResult[model.Message]{}, err
	}
	sel, from := messageSource(include)

	var out query.PageResult[model.Message]
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		out, err = list(ctx, sess, query.Query{
			Name:    "list messages",
			Select:  sel,
			From:    from,
			Where:   where,
			OrderBy: s.sorter.Resolve(sort),
		}, p, scanMessage)
		if err != nil {
			return err
		}
		return hydrate(ctx, sess, out.Items, include)
	})
	if err != nil {
		return query.PageResult[model.Message]{}, fmt.Errorf("sqlstore: listing messages: %w", err)
	}
	return out, nil
}

func (s *MessageStore) MarkRead(ctx context.Context, conversation, reader uuid.UUID, at time.Time) (int64, error) {
	n, err := s.exec1(ctx, "mark messages read",
		`UPDATE messages SET is_read = ?, read_at = ?
		 WHERE conversation_id = ? AND receiver_id = ? AND is_read = ? AND deleted_at IS NULL`,
		true, at.UTC().Truncate(time.Microsecond), conversation, reader, false)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: marking messages read: %w", err)
	}
	return n, nil
}

// SoftDelete blanks the body and stamps deleted_at. The row and its
// attachments stay so the conversation keeps its shape. Deleting an already
// deleted message reports NotFound.
func (s *MessageStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := s.exec1(ctx, "soft delete message",
		`UPDATE messages SET body = '', deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC().Truncate(time.Microsecond), id)
	if err == nil {
		err = requireAffected(n, "message", id)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: deleting message: %w", err)
	}
	return nil
}

func (s *MessageStore) UnreadCount(ctx context.Context, user uuid.UUID) (int64, error) {
	var n int64
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		n, err = sess.Count(ctx, "unread messages",
			`SELECT COUNT(*) AS total FROM messages
			 WHERE receiver_id = ? AND is_read = ? AND deleted_at IS NULL`, user, false)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting unread messages: %w", err)
	}
	return n, nil
}

const messageStatsColumns = `COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN m.is_read THEN 0 ELSE 1 END), 0) AS unread,
	COALESCE(SUM(CASE WHEN m.deleted_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS deleted,
	COALESCE(SUM(CASE WHEN EXISTS (SELECT 1 FROM attachments a WHERE a.message_id = m.id) THEN 1 ELSE 0 END), 0) AS with_attachments,
	COALESCE(SUM((SELECT COALESCE(SUM(a.size_bytes), 0) FROM attachments a WHERE a.message_id = m.id)), 0) AS attachment_bytes`

func (s *MessageStore) Stats(ctx context.Context, f repository.MessageFilter) (*model.MessageStats, error) {
	where, err := s.filter.Build(messageFilter(f))
	if err != nil {
		return nil, err
	}

	var stats model.MessageStats
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		r, err := sess.Aggregate(ctx, "message stats", messageStatsColumns, "messages m", where)
		if err != nil {
			return err
		}
		stats = model.MessageStats{
			Total:           r.Int64("total"),
			Unread:          r.Int64("unread"),
			Deleted:         r.Int64("deleted"),
			WithAttachments: r.Int64("with_attachments"),
			AttachmentBytes: r.Int64("attachment_bytes"),
		}
		return r.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: message stats: %w", err)
	}
	return &stats, nil
}
