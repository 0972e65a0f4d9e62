package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

type messagingFixture struct {
	svc      *MessagingService
	convs    *mockConversationRepo
	msgs     *mockMessageRepo
	drafts   *mockDraftRepo
	notifier *mockNotifier
	ann, bob uuid.UUID
}

func newMessaging(t *testing.T) *messagingFixture {
	t.Helper()
	f := &messagingFixture{
		convs:    newMockConversationRepo(),
		msgs:     newMockMessageRepo(),
		drafts:   &mockDraftRepo{},
		notifier: &mockNotifier{},
		ann:      uuid.New(),
		bob:      uuid.New(),
	}
	f.svc = NewMessagingService(f.convs, f.msgs, f.drafts, f.notifier, quietLogger())
	f.svc.now = fixedClock
	return f
}

func (f *messagingFixture) send(t *testing.T, from, to uuid.UUID, body string) *model.Message {
	t.Helper()
	m, err := f.svc.Send(context.Background(), NewMessage{SenderID: from, RecipientID: to, Body: body})
	require.NoError(t, err)
	return m
}

// =========================================================================
// SEND
// =========================================================================

func TestSend_OpensOneConversationPerPair(t *testing.T) {
	f := newMessaging(t)

	first := f.send(t, f.ann, f.bob, "hi bob")
	reply := f.send(t, f.bob, f.ann, "hi ann")

	assert.Equal(t, first.ConversationID, reply.ConversationID)
	assert.Len(t, f.convs.convs, 1)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, f.bob, f.notifier.sent[0].UserID)
	assert.Equal(t, f.ann, *f.notifier.sent[0].ActorID)
	assert.Equal(t, "hi bob", f.notifier.sent[0].Body)
}

func TestSend_Validation(t *testing.T) {
	tooMany := make([]model.Attachment, MaxAttachments+1)
	for i := range tooMany {
		tooMany[i] = model.Attachment{FileName: "a.txt", StorageKey: "k"}
	}

	tests := []struct {
		name string
		in   func(f *messagingFixture) NewMessage
	}{
		{"to self", func(f *messagingFixture) NewMessage {
			return NewMessage{SenderID: f.ann, RecipientID: f.ann, Body: "echo"}
		}},
		{"empty body", func(f *messagingFixture) NewMessage {
			return NewMessage{SenderID: f.ann, RecipientID: f.bob, Body: "  "}
		}},
		{"body too long", func(f *messagingFixture) NewMessage {
			return NewMessage{SenderID: f.ann, RecipientID: f.bob, Body: strings.Repeat("é", MaxMessageLength+1)}
		}},
		{"too many attachments", func(f *messagingFixture) NewMessage {
			return NewMessage{SenderID: f.ann, RecipientID: f.bob, Attachments: tooMany}
		}},
		{"attachment without key", func(f *messagingFixture) NewMessage {
			return NewMessage{SenderID: f.ann, RecipientID: f.bob, Attachments: []model.Attachment{{FileName: "a.txt"}}}
		}},
		{"attachments too big", func(f *messagingFixture) NewMessage {
			return NewMessage{SenderID: f.ann, RecipientID: f.bob, Attachments: []model.Attachment{
				{FileName: "a.bin", StorageKey: "a", SizeBytes: MaxAttachmentBytes},
				{FileName: "b.bin", StorageKey: "b", SizeBytes: 1},
			}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMessaging(t)
			_, err := f.svc.Send(context.Background(), tt.in(f))
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, f.msgs.msgs)
		})
	}
}

func TestSend_AttachmentsOnlyAndDraftCleanup(t *testing.T) {
	f := newMessaging(t)
	draft := uuid.New()

	m, err := f.svc.Send(context.Background(), NewMessage{
		SenderID:    f.ann,
		RecipientID: f.bob,
		Attachments: []model.Attachment{{FileName: "trace.log", StorageKey: "k1", SizeBytes: 10}},
		DraftID:     &draft,
	})
	require.NoError(t, err, "a message with attachments needs no body")
	assert.Len(t, m.Attachments, 1)
	// The mock answers NotFound for the draft, which Send ignores.
	assert.Equal(t, []uuid.UUID{draft}, f.drafts.deleted)
	assert.Equal(t, []uuid.UUID{f.ann}, f.drafts.deletedBy, "only the sender's own draft is removed")
}

func TestSend_RepositoryFailure(t *testing.T) {
	f := newMessaging(t)
	f.msgs.sendErr = errors.New("disk full")

	_, err := f.svc.Send(context.Background(), NewMessage{SenderID: f.ann, RecipientID: f.bob, Body: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, f.notifier.sent)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("ü", 100)
	assert.Equal(t, strings.Repeat("ü", 80)+"…", preview(long))
}

// =========================================================================
// ACCESS
// =========================================================================

func TestConversationAccess(t *testing.T) {
	f := newMessaging(t)
	ctx := context.Background()
	m := f.send(t, f.ann, f.bob, "hello")
	eve := uuid.New()

	_, err := f.svc.Conversation(ctx, m.ConversationID, eve)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.Messages(ctx, m.ConversationID, eve, repository.MessageFilter{}, query.Sort{}, query.PageRequest{}, 0)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, f.svc.Archive(ctx, m.ConversationID, eve, true), apperror.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteConversation(ctx, m.ConversationID, eve), apperror.ErrNotFound)

	c, err := f.svc.Conversation(ctx, m.ConversationID, f.bob)
	require.NoError(t, err)
	assert.True(t, c.Has(f.ann))
}

func TestMessages_ScopedToConversation(t *testing.T) {
	f := newMessaging(t)
	m := f.send(t, f.ann, f.bob, "hello")
	other := uuid.New()

	_, err := f.svc.Messages(context.Background(), m.ConversationID, f.ann,
		repository.MessageFilter{ConversationID: &other, SenderID: &f.bob}, query.Sort{}, query.PageRequest{}, model.IncludeAttachments)
	require.NoError(t, err)
	assert.Equal(t, m.ConversationID, *f.msgs.lastList.ConversationID)
	assert.Equal(t, f.bob, *f.msgs.lastList.SenderID)
}

func TestConversations_AlwaysTheViewer(t *testing.T) {
	f := newMessaging(t)
	eve := uuid.New()

	_, err := f.svc.Conversations(context.Background(), f.ann,
		repository.ConversationFilter{Participant: &eve}, query.Sort{}, query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, f.ann, *f.convs.lastList.Participant)
}

func TestMarkRead_OnlyReceived(t *testing.T) {
	f := newMessaging(t)
	m := f.send(t, f.ann, f.bob, "one")
	f.send(t, f.ann, f.bob, "two")
	f.send(t, f.bob, f.ann, "three")

	n, err := f.svc.MarkRead(context.Background(), m.ConversationID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeleteMessage_OnlySender(t *testing.T) {
	f := newMessaging(t)
	ctx := context.Background()
	m := f.send(t, f.ann, f.bob, "oops")

	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, m.ID, f.bob), apperror.ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, m.ID, uuid.New()), apperror.ErrNotFound, "strangers cannot see the message")
	assert.Empty(t, f.msgs.deleted)
	require.NoError(t, f.svc.DeleteMessage(ctx, m.ID, f.ann))
	assert.Equal(t, testEpoch, f.msgs.deleted[m.ID])
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, uuid.New(), f.ann), apperror.ErrNotFound)
}

// =========================================================================
// DRAFTS
// =========================================================================

func TestSaveDraft(t *testing.T) {
	f := newMessaging(t)
	ctx := context.Background()
	m := f.send(t, f.ann, f.bob, "hello")

	d := &model.Draft{UserID: f.bob, ConversationID: &m.ConversationID, Body: "  reply in progress "}
	require.NoError(t, f.svc.SaveDraft(ctx, d))
	assert.Equal(t, "reply in progress", d.Body)
	assert.Equal(t, int32(1), d.Version)

	eve := uuid.New()
	intruder := &model.Draft{UserID: eve, ConversationID: &m.ConversationID, Body: "hi"}
	assert.ErrorIs(t, f.svc.SaveDraft(ctx, intruder), apperror.ErrNotFound)
	assert.Len(t, f.drafts.saved, 1)
}
