package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/handler"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/repository/sqlstore"
	"github.com/sakif/snippet-store/internal/service"
)

// HANDLER TESTS RUN THE WHOLE STACK:
// Each test gets a migrated in-memory SQLite database with the real
// repositories and services behind the handlers. Only HTTP goes through
// httptest, so status codes, error bodies and query-string parsing are
// checked against what the database actually returns.

type testAPI struct {
	router http.Handler
	repos  repository.Repositories
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(context.Background(), database.Config{Backend: query.SQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	repos := sqlstore.New(db, logger).Repositories()
	notifications := service.NewNotificationService(repos.Notifications, repos.NotificationSettings, logger)
	moderation := service.NewModerationService(repos.Reports, notifications, logger)
	messaging := service.NewMessagingService(repos.Conversations, repos.Messages, repos.Drafts, notifications, logger)
	accessLogs := service.NewAccessLogService(repos.AccessLogs, logger)

	reports := handler.NewReportHandler(moderation, logger)
	messages := handler.NewMessageHandler(messaging, logger)
	inbox := handler.NewNotificationHandler(notifications, logger)
	logs := handler.NewAccessLogHandler(accessLogs, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/reports", reports.Routes)
		r.Route("/conversations", messages.ConversationRoutes)
		r.Route("/messages", messages.MessageRoutes)
		r.Route("/drafts", messages.DraftRoutes)
		r.Route("/notifications", inbox.Routes)
		r.Route("/access-logs", logs.Routes)
	})
	return &testAPI{router: r, repos: repos}
}

func (a *testAPI) user(t *testing.T, login string) uuid.UUID {
	t.Helper()
	u := model.User{Login: login}
	require.NoError(t, a.repos.Users.Create(context.Background(), &u))
	return u.ID
}

// do sends one request. A nil user sends no X-User-ID header; a string body
// is sent as-is, anything else is JSON-encoded.
func (a *testAPI) do(t *testing.T, method, path string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if buf != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		req.Header.Set("X-User-ID", user.String())
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

// =========================================================================
// QUERY-STRING VALIDATION
// =========================================================================

func TestListParams_Rejected(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user(t, "alice")

	tests := []struct {
		name      string
		path      string
		wantError string
		wantField string
	}{
		{"misspelt filter", "/api/reports?stauts=pending", "invalid_query", "stauts"},
		{"unknown sort token", "/api/reports?sort=size", "invalid_query", "sort"},
		{"unknown direction", "/api/reports?sort=created&dir=sideways", "validation_error", "dir"},
		{"zero page", "/api/reports?page=0", "validation_error", "page"},
		{"garbage page size", "/api/reports?page_size=lots", "validation_error", "page_size"},
		{"unknown status", "/api/reports?status=pending,escalated", "validation_error", "status"},
		{"bad timestamp", "/api/reports?created_from=yesterday", "validation_error", "created_from"},
		{"bad id", "/api/reports?reporter_id=42", "validation_error", "reporter_id"},
		{"bad duration", "/api/access-logs?min_duration=soon", "validation_error", "min_duration"},
		{"bad status bound", "/api/access-logs?status_min=4xx", "validation_error", "status_min"},
		{"unknown notification kind", "/api/notifications?kind=digest", "validation_error", "kind"},
		{"unknown include", "/api/conversations/" + uuid.NewString() + "/messages?include=reactions", "validation_error", "include"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodGet, tt.path, alice, nil)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			resp := decode[handler.ErrorResponse](t, rr)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestListParams_PageIsClamped(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/reports?page_size=5000&sort=priority&dir=ASC", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	page := decode[query.PageResult[model.CommentReport]](t, rr)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, query.MaxPageSize, page.PageSize)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items, "an empty page is [] not null")

	rr = api.do(t, http.MethodGet, "/api/reports?page=4611686018427387905&page_size=2", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page = decode[query.PageResult[model.CommentReport]](t, rr)
	assert.Positive(t, page.Page)
	assert.Empty(t, page.Items)
}

func TestViewerHeader_Required(t *testing.T) {
	api := newTestAPI(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/reports"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/messages"},
		{http.MethodGet, "/api/drafts"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodGet, "/api/notifications/unread"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rr := api.do(t, p.method, p.path, uuid.Nil, nil)
			assert.Equal(t, http.StatusForbidden, rr.Code)
			assert.Equal(t, "forbidden", decode[handler.ErrorResponse](t, rr).Error)
		})
	}

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.Header.Set("X-User-ID", "alice")
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

// =========================================================================
// REPORTS
// =========================================================================

func TestReports_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	reporter := api.user(t, "reporter")
	moderator := api.user(t, "moderator")
	comment, snippet := uuid.New(), uuid.New()

	rr := api.do(t, http.MethodPost, "/api/reports", reporter, map[string]any{
		"commentId": comment, "snippetId": snippet, "reason": "spam", "details": "  buy now  ",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[model.CommentReport](t, rr)
	assert.Equal(t, model.ReportPending, created.Status)
	assert.Equal(t, "buy now", created.Details)

	t.Run("duplicate report conflicts", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/reports", reporter, map[string]any{
			"commentId": comment, "snippetId": snippet, "reason": "harassment",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("listed by status", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/reports?status=pending,reviewing&reporter_id="+reporter.String(), uuid.Nil, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		page := decode[query.PageResult[model.CommentReport]](t, rr)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(1), page.TotalCount)
		assert.Equal(t, created.ID, page.Items[0].ID)
		require.NotNil(t, page.Items[0].Reporter)
		assert.Equal(t, "reporter", page.Items[0].Reporter.Login)
	})

	t.Run("queue", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/reports/queue", uuid.Nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(1), decode[query.PageResult[model.CommentReport]](t, rr).TotalCount)
	})

	rr = api.do(t, http.MethodPost, "/api/reports/"+created.ID.String()+"/handle", moderator, map[string]any{
		"status": "resolved", "note": "comment removed",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	handled := decode[model.CommentReport](t, rr)
	assert.Equal(t, model.ReportResolved, handled.Status)
	require.NotNil(t, handled.HandledBy)
	assert.Equal(t, moderator, *handled.HandledBy)
	require.NotNil(t, handled.HandlerNote)
	assert.Equal(t, "comment removed", *handled.HandlerNote)

	t.Run("closed report cannot be handled again", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/reports/"+created.ID.String()+"/handle", moderator, map[string]any{
			"status": "dismissed",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("reporter is notified", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/notifications?kind=report_update", reporter, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page := decode[query.PageResult[model.Notification]](t, rr)
		require.Len(t, page.Items, 1)
		require.NotNil(t, page.Items[0].ActorID)
		assert.Equal(t, moderator, *page.Items[0].ActorID)
	})

	t.Run("stats", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/reports/stats", uuid.Nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		stats := decode[model.ReportStats](t, rr)
		assert.Equal(t, int64(1), stats.Total)
		assert.Equal(t, int64(1), stats.Resolved)
	})

	rr = api.do(t, http.MethodDelete, "/api/reports/"+created.ID.String(), uuid.Nil, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do(t, http.MethodGet, "/api/reports/"+created.ID.String(), uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode[handler.ErrorResponse](t, rr).Error)
}

func TestReports_CreateRejected(t *testing.T) {
	api := newTestAPI(t)
	reporter := api.user(t, "reporter")

	tests := []struct {
		name      string
		body      any
		wantField string
	}{
		{"other needs details", map[string]any{"commentId": uuid.New(), "snippetId": uuid.New(), "reason": "other"}, "details"},
		{"unknown reason", map[string]any{"commentId": uuid.New(), "snippetId": uuid.New(), "reason": "rude"}, "reason"},
		{"missing comment", map[string]any{"snippetId": uuid.New(), "reason": "spam"}, "commentId"},
		{"unknown body field", map[string]any{"commentId": uuid.New(), "snippetId": uuid.New(), "reason": "spam", "severity": 3}, "body"},
		{"not JSON", "reason=spam", "body"},
		{"empty body", "", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, "/api/reports", reporter, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			resp := decode[handler.ErrorResponse](t, rr)
			assert.Equal(t, "validation_error", resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
		})
	}

	t.Run("bad path id", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/reports/not-an-id", uuid.Nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

// =========================================================================
// MESSAGES
// =========================================================================

func TestMessages_SendAndRead(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user(t, "alice")
	bob := api.user(t, "bob")
	carol := api.user(t, "carol")

	rr := api.do(t, http.MethodPost, "/api/messages", alice, map[string]any{
		"recipientId": bob,
		"subject":     "review",
		"body":        "could you look at my snippet?",
		"attachments": []map[string]any{{"fileName": "main.go", "contentType": "text/x-go", "sizeBytes": 512, "storageKey": "k/1"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sent := decode[model.Message](t, rr)
	conv := sent.ConversationID.String()

	t.Run("recipient sees the conversation", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/conversations", bob, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page := decode[query.PageResult[model.Conversation]](t, rr)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "review", page.Items[0].Subject)
	})

	t.Run("messages with attachments and participants", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/conversations/"+conv+"/messages?include=attachments,participants", bob, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		page := decode[query.PageResult[model.Message]](t, rr)
		require.Len(t, page.Items, 1)
		m := page.Items[0]
		assert.Equal(t, "could you look at my snippet?", m.Body)
		require.Len(t, m.Attachments, 1)
		assert.Equal(t, int64(512), m.Attachments[0].SizeBytes)
		require.NotNil(t, m.Sender)
		assert.Equal(t, "alice", m.Sender.Login)
	})

	t.Run("strangers get not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/conversations/"+conv, carol, nil).Code)
		assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/conversations/"+conv+"/messages", carol, nil).Code)
	})

	t.Run("recipient is notified", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/notifications?kind=message&is_read=false", bob, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(1), decode[query.PageResult[model.Notification]](t, rr).TotalCount)
	})

	rr = api.do(t, http.MethodGet, "/api/messages/unread", bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decode[map[string]int64](t, rr)["count"])

	rr = api.do(t, http.MethodPost, "/api/conversations/"+conv+"/read", bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decode[map[string]int64](t, rr)["count"])

	rr = api.do(t, http.MethodGet, "/api/messages/unread", bob, nil)
	assert.Equal(t, int64(0), decode[map[string]int64](t, rr)["count"])

	t.Run("only the sender deletes", func(t *testing.T) {
		path := "/api/messages/" + sent.ID.String()
		assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, path, carol, nil).Code)
		assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, path, bob, nil).Code)
		assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, path, alice, nil).Code)
		assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, path, alice, nil).Code)
	})

	t.Run("self message rejected", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/messages", alice, map[string]any{"recipientId": alice, "body": "note to self"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDrafts_SaveConflict(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user(t, "alice")
	bob := api.user(t, "bob")

	rr := api.do(t, http.MethodPut, "/api/drafts", alice, map[string]any{"recipientId": bob, "body": "first"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	d := decode[model.Draft](t, rr)
	assert.Equal(t, int32(1), d.Version)

	rr = api.do(t, http.MethodPut, "/api/drafts", alice, map[string]any{"id": d.ID, "version": 1, "recipientId": bob, "body": "second"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int32(2), decode[model.Draft](t, rr).Version)

	rr = api.do(t, http.MethodPut, "/api/drafts", alice, map[string]any{"id": d.ID, "version": 1, "recipientId": bob, "body": "stale"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, http.MethodPut, "/api/drafts", bob, map[string]any{"id": d.ID, "version": 2, "body": "hijack"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/drafts?sort=updated", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[query.PageResult[model.Draft]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "second", page.Items[0].Body)
}

func TestDrafts_SendRemovesOnlyOwnDraft(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user(t, "alice")
	bob := api.user(t, "bob")
	carol := api.user(t, "carol")

	rr := api.do(t, http.MethodPut, "/api/drafts", carol, map[string]any{"recipientId": bob, "body": "carol's"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	carolDraft := decode[model.Draft](t, rr)

	rr = api.do(t, http.MethodPut, "/api/drafts", alice, map[string]any{"recipientId": bob, "body": "hi"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	aliceDraft := decode[model.Draft](t, rr)

	rr = api.do(t, http.MethodPost, "/api/messages", alice, map[string]any{"recipientId": bob, "body": "hi", "draftId": carolDraft.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/api/drafts", carol, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[query.PageResult[model.Draft]](t, rr).Items, 1, "carol's draft is untouched")

	rr = api.do(t, http.MethodPost, "/api/messages", alice, map[string]any{"recipientId": bob, "body": "hi", "draftId": aliceDraft.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/api/drafts", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[query.PageResult[model.Draft]](t, rr).Items)
}

// =========================================================================
// NOTIFICATIONS
// =========================================================================

func TestNotifications_ReadState(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	alice := api.user(t, "alice")
	bob := api.user(t, "bob")

	var ids []uuid.UUID
	for _, kind := range []model.NotificationKind{model.NotifyMention, model.NotifyCommentReply, model.NotifySnippetFork} {
		n := model.Notification{UserID: alice, ActorID: &bob, Kind: kind, Title: string(kind)}
		require.NoError(t, api.repos.Notifications.Create(ctx, &n))
		ids = append(ids, n.ID)
	}
	other := model.Notification{UserID: bob, Kind: model.NotifyMention, Title: "not alice's"}
	require.NoError(t, api.repos.Notifications.Create(ctx, &other))

	rr := api.do(t, http.MethodPost, "/api/notifications/read", alice, map[string]any{"ids": []uuid.UUID{ids[0], other.ID}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(1), decode[map[string]int64](t, rr)["count"], "bob's notification is not alice's to read")

	rr = api.do(t, http.MethodGet, "/api/notifications/unread", alice, nil)
	assert.Equal(t, int64(2), decode[map[string]int64](t, rr)["count"])

	rr = api.do(t, http.MethodGet, "/api/notifications?is_read=false&kind=mention,comment_reply&sort=kind&dir=asc", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[query.PageResult[model.Notification]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.NotifyCommentReply, page.Items[0].Kind)
	require.NotNil(t, page.Items[0].Actor)
	assert.Equal(t, "bob", page.Items[0].Actor.Login)

	rr = api.do(t, http.MethodPost, "/api/notifications/read-all", alice, nil)
	assert.Equal(t, int64(2), decode[map[string]int64](t, rr)["count"])

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/notifications/"+other.ID.String(), alice, nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/notifications/"+ids[2].String(), alice, nil).Code)
}

func TestNotifications_Settings(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user(t, "alice")

	rr := api.do(t, http.MethodGet, "/api/notifications/settings", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	defaults := decode[[]map[string]any](t, rr)
	assert.Len(t, defaults, len(model.NotificationKinds()))

	rr = api.do(t, http.MethodPut, "/api/notifications/settings", alice, map[string]any{
		"kind": "message", "inApp": true, "digestInterval": "1h", "quietStart": "22h", "quietEnd": "7h",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := decode[map[string]any](t, rr)
	assert.Equal(t, "1h0m0s", saved["digestInterval"])
	assert.Equal(t, "22h0m0s", saved["quietStart"])

	rejected := []struct {
		name string
		body map[string]any
	}{
		{"unknown kind", map[string]any{"kind": "digest"}},
		{"unparseable duration", map[string]any{"kind": "message", "digestInterval": "hourly"}},
		{"digest too short", map[string]any{"kind": "message", "digestInterval": "10s"}},
		{"half a quiet window", map[string]any{"kind": "message", "quietStart": "22h"}},
		{"quiet hour out of range", map[string]any{"kind": "message", "quietStart": "22h", "quietEnd": "25h"}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPut, "/api/notifications/settings", alice, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/notifications/settings/message", alice, nil).Code)
}

// =========================================================================
// ACCESS LOGS
// =========================================================================

func TestAccessLogs_Filters(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	alice := api.user(t, "alice")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, e := range []struct {
		path   string
		status int32
		dur    time.Duration
	}{
		{"/api/reports", 200, 12 * time.Millisecond},
		{"/api/messages", 500, 300 * time.Millisecond},
		{"/api/messages", 503, 20 * time.Millisecond},
	} {
		l := model.AccessLog{
			RequestID: uuid.NewString(), UserID: &alice, Method: http.MethodGet, Path: e.path,
			Status: e.status, Duration: e.dur, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, api.repos.AccessLogs.Record(ctx, &l))
	}

	rr := api.do(t, http.MethodGet, "/api/access-logs?status_min=500&min_duration=250ms", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[query.PageResult[model.AccessLog]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 300*time.Millisecond, page.Items[0].Duration)

	rr = api.do(t, http.MethodGet, "/api/access-logs?path=messages&sort=duration&dir=asc", uuid.Nil, nil)
	page = decode[query.PageResult[model.AccessLog]](t, rr)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int32(503), page.Items[0].Status)

	rr = api.do(t, http.MethodGet, "/api/access-logs/stats?user_id="+alice.String(), uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[model.AccessLogStats](t, rr)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, int64(1), stats.UniqueUsers)

	rr = api.do(t, http.MethodGet, "/api/access-logs?status_min=500&status_max=400", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
