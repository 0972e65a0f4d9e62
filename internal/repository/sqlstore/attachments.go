package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

const attachmentColumns = `a.id, a.message_id, a.file_name, a.content_type, a.size_bytes, a.storage_key, a.created_at`

// AttachmentStore is the attachment repository.
type AttachmentStore struct {
	*Store
}

var _ repository.AttachmentRepository = (*AttachmentStore)(nil)

func scanAttachment(r *query.Row) model.Attachment {
	return model.Attachment{
		ID:          r.ID("id"),
		MessageID:   r.ID("message_id"),
		FileName:    r.String("file_name"),
		ContentType: r.String("content_type"),
		SizeBytes:   r.Int64("size_bytes"),
		StorageKey:  r.String("storage_key"),
		CreatedAt:   r.Time("created_at"),
	}
}

// insertAttachments writes all rows with one multi-row INSERT.
func insertAttachments(ctx context.Context, sess *query.Session, as []model.Attachment) error {
	if len(as) == 0 {
		return nil
	}
	const width = 7
	args := make([]any, 0, len(as)*width)
	for _, a := range as {
		args = append(args, a.ID, a.MessageID, a.FileName, a.ContentType, a.SizeBytes, a.StorageKey, a.CreatedAt)
	}
	_, err := sess.Exec(ctx, "insert attachments",
		`INSERT INTO attachments (id, message_id, file_name, content_type, size_bytes, storage_key, created_at)
		 VALUES `+query.InsertValues(len(as), width), args...)
	return err
}

// loadAttachments fetches the attachments of many messages in one query and
// distributes them by message. Messages without attachments are absent from
// the map.
func loadAttachments(ctx context.Context, sess *query.Session, messageIDs []uuid.UUID) (map[uuid.UUID][]model.Attachment, error) {
	rows, err := sess.SelectIn(ctx, "attachments by message",
		`SELECT `+attachmentColumns+` FROM attachments a
		 WHERE a.message_id IN (?)
		 ORDER BY a.created_at, a.id`, messageIDs)
	if err != nil {
		return nil, err
	}
	as, err := query.MapRows(rows, sess.Normalizer(), scanAttachment)
	if err != nil {
		return nil, fmt.Errorf("query: attachments by message: %w", err)
	}
	return query.GroupBy(as, func(a model.Attachment) uuid.UUID { return a.MessageID }), nil
}

func (s *AttachmentStore) Create(ctx context.Context, a *model.Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = s.timestamp()

	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		return insertAttachments(ctx, sess, []model.Attachment{*a})
	})
	if err != nil {
		return fmt.Errorf("sqlstore: creating attachment: %w", err)
	}
	return nil
}

func (s *AttachmentStore) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]model.Attachment, error) {
	byMessage, err := s.ListByMessages(ctx, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	if as := byMessage[messageID]; as != nil {
		return as, nil
	}
	return []model.Attachment{}, nil
}

func (s *AttachmentStore) ListByMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]model.Attachment, error) {
	var out map[uuid.UUID][]model.Attachment
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		out, err = loadAttachments(ctx, sess, messageIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing attachments: %w", err)
	}
	return out, nil
}

func (s *AttachmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.exec1(ctx, "delete attachment", `DELETE FROM attachments WHERE id = ?`, id)
	if err == nil {
		err = requireAffected(n, "attachment", id)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: deleting attachment: %w", err)
	}
	return nil
}
