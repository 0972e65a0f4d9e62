package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

const draftColumns = `d.id, d.user_id, d.conversation_id, d.recipient_id, d.body, d.version, d.created_at, d.updated_at`

// DraftStore is the draft repository.
type DraftStore struct {
	*Store
	filter *query.Builder
	sorter *query.Sorter
}

var _ repository.DraftRepository = (*DraftStore)(nil)

func newDraftStore(s *Store) *DraftStore {
	return &DraftStore{
		Store: s,
		filter: s.builder(
			query.Field{Name: "user_id", Column: "d.user_id", Op: query.OpEquals},
			query.Field{Name: "conversation_id", Column: "d.conversation_id", Op: query.OpEquals},
			query.Field{Name: "updated", Column: "d.updated_at", Op: query.OpRange},
			query.Field{Name: "search", Column: "d.body", Op: query.OpContains},
		),
		sorter: query.NewSorter(repository.DraftSorts, map[string]string{
			repository.DraftSortUpdated: "d.updated_at",
			repository.DraftSortCreated: "d.created_at",
		}, "d.created_at", "d.id"),
	}
}

func draftFilter(f repository.DraftFilter) query.Filter {
	q := query.Filter{}
	if f.UserID != nil {
		q.Set("user_id", query.Equals(f.UserID))
	}
	if f.ConversationID != nil {
		q.Set("conversation_id", query.Equals(f.ConversationID))
	}
	if c, ok := timeRange(f.Updated); ok {
		q.Set("updated", c)
	}
	if f.Search != "" {
		q.Set("search", query.Contains(f.Search))
	}
	return q
}

func scanDraft(r *query.Row) model.Draft {
	return model.Draft{
		ID:             r.ID("id"),
		UserID:         r.ID("user_id"),
		ConversationID: r.OptID("conversation_id"),
		RecipientID:    r.OptID("recipient_id"),
		Body:           r.String("body"),
		Version:        r.Int32("version"),
		CreatedAt:      r.Time("created_at"),
		UpdatedAt:      r.Time("updated_at"),
	}
}

// Save inserts or updates d.
//
// OPTIMISTIC LOCKING:
// The UPDATE only matches when the stored version still equals the one the
// caller read. Zero rows affected means either the draft is gone (NotFound)
// or somebody saved in between (Conflict); one extra read tells them apart.
func (s *DraftStore) Save(ctx context.Context, d *model.Draft) error {
	now := s.timestamp()
	if d.Version == 0 {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		_, err := s.exec1(ctx, "insert draft",
			`INSERT INTO drafts (id, user_id, conversation_id, recipient_id, body, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.UserID, d.ConversationID, d.RecipientID, d.Body, 1, now, now)
		if err != nil {
			return fmt.Errorf("sqlstore: creating draft: %w", conflict(err, "draft", d.ID.String()))
		}
		d.Version, d.CreatedAt, d.UpdatedAt = 1, now, now
		return nil
	}

	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		n, err := sess.Exec(ctx, "update draft",
			`UPDATE drafts SET conversation_id = ?, recipient_id = ?, body = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			d.ConversationID, d.RecipientID, d.Body, now, d.ID, d.Version)
		if err != nil || n == 1 {
			return err
		}
		_, err = sess.Get(ctx, "draft version", `SELECT version FROM drafts WHERE id = ?`, d.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("draft", d.ID.String())
		}
		if err != nil {
			return err
		}
		return apperror.Conflict("draft", d.ID.String())
	})
	if err != nil {
		return fmt.Errorf("sqlstore: saving draft: %w", err)
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

func (s *DraftStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Draft, error) {
	var d model.Draft
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		d, err = getOne(ctx, sess, "get draft", `SELECT `+draftColumns+` FROM drafts d WHERE d.id = ?`, scanDraft, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting draft: %w", notFound(err, "draft", id))
	}
	return &d, nil
}

func (s *DraftStore) List(ctx context.Context, f repository.DraftFilter, sort query.Sort, p query.PageRequest) (query.PageResult[model.Draft], error) {
	where, err := s.filter.Build(draftFilter(f))
	if err != nil {
		return query.PageResult[model.Draft]{}, err
	}

	var out query.PageResult[model.Draft]
	err = s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		out, err = list(ctx, sess, query.Query{
			Name:    "list drafts",
			Select:  draftColumns,
			From:    "drafts d",
			Where:   where,
			OrderBy: s.sorter.Resolve(sort),
		}, p, scanDraft)
		return err
	})
	if err != nil {
		return query.PageResult[model.Draft]{}, fmt.Errorf("sqlstore: listing drafts: %w", err)
	}
	return out, nil
}

func (s *DraftStore) Delete(ctx context.Context, user, id uuid.UUID) error {
	n, err := s.exec1(ctx, "delete draft",
		`DELETE FROM drafts WHERE id = ? AND user_id = ?`, id, user)
	if err == nil {
		err = requireAffected(n, "draft", id)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: deleting draft: %w", err)
	}
	return nil
}
