package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

const conversationColumns = `c.id, c.participant_a, c.participant_b, c.subject, c.is_archived,
	c.last_message_at, c.created_at, c.updated_at`

// ConversationStore is the conversation repository.
type ConversationStore struct {
	*Store
	filter *query.Builder
	sorter *query.Sorter
}

var _ repository.ConversationRepository = (*ConversationStore)(nil)

func newConversationStore(s *Store) *ConversationStore {
	return &ConversationStore{
		Store: s,
		filter: s.builder(
			query.Field{Name: "archived", Column: "c.is_archived", Op: query.OpFlag},
			query.Field{Name: "last_message", Column: "c.last_message_at", Op: query.OpRange},
			query.Field{Name: "search", Column: "c.subject", Op: query.OpContains},
		),
		// A conversation without messages sorts by when it was opened.
		sorter: query.NewSorter(repository.ConversationSorts, map[string]string{
			repository.ConversationSortLastMessage: "COALESCE(c.last_message_at, c.created_at)",
			repository.ConversationSortCreated:     "c.created_at",
			repository.ConversationSortSubject:     "c.subject",
		}, "c.created_at", "c.id"),
	}
}

// conversationWhere builds the filter. A participant matches either side of
// the pair, which is one fixed two-column fragment rather than a field.
func (s *ConversationStore) conversationWhere(f repository.ConversationFilter) (query.Where, error) {
	q := query.Filter{}
	if f.Archived != nil {
		q.Set("archived", query.Flag(*f.Archived))
	}
	if c, ok := timeRange(f.LastMessage); ok {
		q.Set("last_message", c)
	}
	if f.Search != "" {
		q.Set("search", query.Contains(f.Search))
	}
	where, err := s.filter.Build(q)
	if err != nil {
		return query.Where{}, err
	}
	if f.Participant != nil {
		where.And("(c.participant_a = ? OR c.participant_b = ?)", *f.Participant, *f.Participant)
	}
	return where, nil
}

func scanConversation(r *query.Row) model.Conversation {
	return model.Conversation{
		ID:            r.ID("id"),
		ParticipantA:  r.ID("participant_a"),
		ParticipantB:  r.ID("participant_b"),
		Subject:       r.String("subject"),
		IsArchived:    r.Bool("is_archived"),
		LastMessageAt: r.OptTime("last_message_at"),
		CreatedAt:     r.Time("created_at"),
		UpdatedAt:     r.Time("updated_at"),
	}
}

// GetOrCreate returns the conversation between a and b, creating it on first
// contact. Two callers racing to create the same pair both end up with the
// row that won: the loser's insert hits the unique key and re-reads.
func (s *ConversationStore) GetOrCreate(ctx context.Context, a, b uuid.UUID, subject string) (*model.Conversation, error) {
	if a == b {
		return nil, apperror.ValidationFailed("participant", "a conversation needs two different users")
	}
	a, b = model.OrderedPair(a, b)

	byPair := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.participant_a = ? AND c.participant_b = ?`

	var conv model.Conversation
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		conv, err = getOne(ctx, sess, "conversation by pair", byPair, scanConversation, a, b)
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := s.timestamp()
		conv = model.Conversation{ID: uuid.New(), ParticipantA: a, ParticipantB: b,
			Subject: subject, CreatedAt: now, UpdatedAt: now}
		_, err = sess.Exec(ctx, "insert conversation",
			`INSERT INTO conversations (id, participant_a, participant_b, subject, is_archived, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conv.ID, conv.ParticipantA, conv.ParticipantB, conv.Subject, false, conv.CreatedAt, conv.UpdatedAt)
		if database.IsUniqueViolation(err) {
			conv, err = getOne(ctx, sess, "conversation by pair", byPair, scanConversation, a, b)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening conversation: %w", err)
	}
	return &conv, nil
}

func (s *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		conv, err = getOne(ctx, sess, "get conversation",
			`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, scanConversation, id)
		if err != nil {
			return err
		}
		convs := []model.Conversation{conv}
		if err := attachLastMessages(ctx, sess, convs); err != nil {
			return err
		}
		conv = convs[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting conversation: %w", notFound(err, "conversation", id))
	}
	return &conv, nil
}

// List returns a page of conversations, each with its latest message.
func (s *ConversationStore) List(ctx context.Context, f repository.ConversationFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.Conversation], error) {
	where, err := s.conversationWhere(f)
	if err != nil {
		return query.PageResult[model.Conversation]{}, err
	}

	var out query.PageResult[model.Conversation]
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		out, err = list(ctx, sess, query.Query{
			Name:    "list conversations",
			Select:  conversationColumns,
			From:    "conversations c",
			Where:   where,
			OrderBy: s.sorter.Resolve(sort),
		}, p, scanConversation)
		if err != nil {
			return err
		}
		return attachLastMessages(ctx, sess, out.Items)
	})
	if err != nil {
		return query.PageResult[model.Conversation]{}, fmt.Errorf("sqlstore: listing conversations: %w", err)
	}
	return out, nil
}

// attachLastMessages loads the latest message of every conversation with one
// query.
//
// LATEST MESSAGE JOIN:
// The join matches messages whose created_at equals the conversation's
// last_message_at. Two messages written in the same microsecond both match,
// so the rows are folded by conversation, keeping the last one in id order.
func attachLastMessages(ctx context.Context, sess *query.Session, convs []model.Conversation) error {
	ids := query.Keys(convs, func(c model.Conversation) uuid.UUID { return c.ID })
	rows, err := sess.SelectIn(ctx, "last messages",
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id AND m.created_at = c.last_message_at
		 WHERE m.conversation_id IN (?)
		 ORDER BY m.created_at, m.id`, ids)
	if err != nil {
		return err
	}
	msgs, err := query.MapRows(rows, sess.Normalizer(), scanMessage)
	if err != nil {
		return fmt.Errorf("query: last messages: %w", err)
	}

	latest := query.Fold(msgs,
		func(m model.Message) uuid.UUID { return m.ConversationID },
		func(_, next model.Message) model.Message { return next })
	byConversation := query.GroupBy(latest, func(m model.Message) uuid.UUID { return m.ConversationID })
	for i := range convs {
		if ms, ok := byConversation[convs[i].ID]; ok {
			last := ms[0]
			convs[i].LastMessage = &last
		}
	}
	return nil
}

func (s *ConversationStore) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	n, err := s.exec1(ctx, "archive conversation",
		`UPDATE conversations SET is_archived = ?, updated_at = ? WHERE id = ?`,
		archived, s.timestamp(), id)
	if err == nil {
		err = requireAffected(n, "conversation", id)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: archiving conversation: %w", err)
	}
	return nil
}

// Delete removes the conversation, its messages, their attachments and any
// drafts written into it, in one transaction.
func (s *ConversationStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.exec.InTx(ctx, func(ctx context.Context, sess *query.Session) error {
		steps := []struct{ name, stmt string }{
			{"delete conversation attachments",
				`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`},
			{"delete conversation messages", `DELETE FROM messages WHERE conversation_id = ?`},
			{"delete conversation drafts", `DELETE FROM drafts WHERE conversation_id = ?`},
		}
		for _, step := range steps {
			if _, err := sess.Exec(ctx, step.name, step.stmt, id); err != nil {
				return err
			}
		}
		n, err := sess.Exec(ctx, "delete conversation", `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(n, "conversation", id)
	})
	if err != nil {
		return fmt.Errorf("sqlstore: deleting conversation: %w", err)
	}
	return nil
}
