package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// =========================================================================
// MOCK REPOSITORIES
// =========================================================================
//
// In-memory stand-ins for the repository interfaces. Each mock embeds the
// interface it implements, so a method a test does not expect panics with a
// nil dereference instead of quietly returning zero values.

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testEpoch }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockReportRepo struct {
	repository.ReportRepository
	reports   map[uuid.UUID]*model.CommentReport
	handled   []repository.HandleReport
	handleErr error
	lastList  repository.ReportFilter
	lastSort  query.Sort
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{reports: map[uuid.UUID]*model.CommentReport{}}
}

func (m *mockReportRepo) Create(_ context.Context, r *model.CommentReport) error {
	for _, other := range m.reports {
		if other.CommentID == r.CommentID && other.ReporterID == r.ReporterID {
			return apperror.Conflict("comment report", r.CommentID.String())
		}
	}
	r.ID = uuid.New()
	stored := *r
	m.reports[r.ID] = &stored
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, id uuid.UUID) (*model.CommentReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, apperror.NotFound("comment report", id.String())
	}
	out := *r
	return &out, nil
}

func (m *mockReportRepo) List(_ context.Context, f repository.ReportFilter, s query.Sort, p query.PageRequest) (query.PageResult[model.CommentReport], error) {
	m.lastList, m.lastSort = f, s
	return query.PageResult[model.CommentReport]{Items: []model.CommentReport{}, Page: p.Normalize().Page}, nil
}

func (m *mockReportRepo) Handle(_ context.Context, id uuid.UUID, h repository.HandleReport) (*model.CommentReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, apperror.NotFound("comment report", id.String())
	}
	if m.handleErr != nil {
		return nil, m.handleErr
	}
	if !r.Status.CanMoveTo(h.Status) {
		return nil, apperror.Conflict("comment report", id.String())
	}
	m.handled = append(m.handled, h)
	r.Status, r.HandledBy, r.HandlerNote, r.HandledAt = h.Status, &h.HandlerID, h.Note, &h.HandledAt
	out := *r
	return &out, nil
}

// mockNotifier records what would have been delivered.
type mockNotifier struct {
	sent []model.Notification
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, n *model.Notification) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.sent = append(m.sent, *n)
	return true, nil
}

type mockConversationRepo struct {
	repository.ConversationRepository
	convs    map[uuid.UUID]*model.Conversation
	archived map[uuid.UUID]bool
	lastList repository.ConversationFilter
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{convs: map[uuid.UUID]*model.Conversation{}, archived: map[uuid.UUID]bool{}}
}

func (m *mockConversationRepo) GetOrCreate(_ context.Context, a, b uuid.UUID, subject string) (*model.Conversation, error) {
	a, b = model.OrderedPair(a, b)
	for _, c := range m.convs {
		if c.ParticipantA == a && c.ParticipantB == b {
			out := *c
			return &out, nil
		}
	}
	c := &model.Conversation{ID: uuid.New(), ParticipantA: a, ParticipantB: b, Subject: subject}
	m.convs[c.ID] = c
	out := *c
	return &out, nil
}

func (m *mockConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	c, ok := m.convs[id]
	if !ok {
		return nil, apperror.NotFound("conversation", id.String())
	}
	out := *c
	return &out, nil
}

func (m *mockConversationRepo) List(_ context.Context, f repository.ConversationFilter, _ query.Sort, _ query.PageRequest) (query.PageResult[model.Conversation], error) {
	m.lastList = f
	return query.PageResult[model.Conversation]{Items: []model.Conversation{}}, nil
}

func (m *mockConversationRepo) SetArchived(_ context.Context, id uuid.UUID, archived bool) error {
	m.archived[id] = archived
	return nil
}

func (m *mockConversationRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.convs, id)
	return nil
}

type mockMessageRepo struct {
	repository.MessageRepository
	msgs     map[uuid.UUID]*model.Message
	deleted  map[uuid.UUID]time.Time
	lastList repository.MessageFilter
	sendErr  error
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{msgs: map[uuid.UUID]*model.Message{}, deleted: map[uuid.UUID]time.Time{}}
}

func (m *mockMessageRepo) Send(_ context.Context, msg *model.Message) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	msg.ID = uuid.New()
	stored := *msg
	m.msgs[msg.ID] = &stored
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id uuid.UUID, _ model.MessageInclude) (*model.Message, error) {
	msg, ok := m.msgs[id]
	if !ok {
		return nil, apperror.NotFound("message", id.String())
	}
	out := *msg
	return &out, nil
}

func (m *mockMessageRepo) List(_ context.Context, f repository.MessageFilter, _ query.Sort, _ query.PageRequest, _ model.MessageInclude) (query.PageResult[model.Message], error) {
	m.lastList = f
	return query.PageResult[model.Message]{Items: []model.Message{}}, nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, conversation, reader uuid.UUID, _ time.Time) (int64, error) {
	var n int64
	for _, msg := range m.msgs {
		if msg.ConversationID == conversation && msg.ReceiverID == reader && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepo) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	m.deleted[id] = at
	return nil
}

type mockDraftRepo struct {
	repository.DraftRepository
	saved     []model.Draft
	deleted   []uuid.UUID
	deletedBy []uuid.UUID
}

func (m *mockDraftRepo) Save(_ context.Context, d *model.Draft) error {
	d.Version++
	m.saved = append(m.saved, *d)
	return nil
}

func (m *mockDraftRepo) Delete(_ context.Context, user, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	m.deletedBy = append(m.deletedBy, user)
	return apperror.NotFound("draft", id.String())
}

type mockNotificationRepo struct {
	repository.NotificationRepository
	created []model.Notification
	purged  time.Time
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotificationRepo) CreateBatch(_ context.Context, ns []*model.Notification) error {
	for _, n := range ns {
		m.created = append(m.created, *n)
	}
	return nil
}

func (m *mockNotificationRepo) PurgeBefore(_ context.Context, before time.Time) (int64, error) {
	m.purged = before
	return 3, nil
}

type mockSettingRepo struct {
	repository.NotificationSettingRepository
	settings map[string]model.NotificationSetting
	gets     int
	failGet  bool
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{settings: map[string]model.NotificationSetting{}}
}

func settingMapKey(user uuid.UUID, kind model.NotificationKind) string {
	return user.String() + "/" + string(kind)
}

func (m *mockSettingRepo) Get(_ context.Context, user uuid.UUID, kind model.NotificationKind) (*model.NotificationSetting, error) {
	m.gets++
	if m.failGet {
		return nil, errors.New("database is locked")
	}
	st, ok := m.settings[settingMapKey(user, kind)]
	if !ok {
		return nil, apperror.NotFound("notification setting", user.String())
	}
	return &st, nil
}

func (m *mockSettingRepo) ListByUser(_ context.Context, user uuid.UUID) ([]model.NotificationSetting, error) {
	out := []model.NotificationSetting{}
	for _, st := range m.settings {
		if st.UserID == user {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (m *mockSettingRepo) Upsert(_ context.Context, st *model.NotificationSetting) error {
	m.settings[settingMapKey(st.UserID, st.Kind)] = *st
	return nil
}

func (m *mockSettingRepo) Delete(_ context.Context, user uuid.UUID, kind model.NotificationKind) error {
	key := settingMapKey(user, kind)
	if _, ok := m.settings[key]; !ok {
		return apperror.NotFound("notification setting", user.String())
	}
	delete(m.settings, key)
	return nil
}

func (m *mockSettingRepo) mute(t *testing.T, user uuid.UUID, kind model.NotificationKind) {
	t.Helper()
	st := model.DefaultSetting(user, kind)
	st.InApp = false
	m.settings[settingMapKey(user, kind)] = st
}
