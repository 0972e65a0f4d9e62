package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository/sqlstore"
)

// useTempDB points the CLI at a fresh SQLite file and hides the host's
// database settings.
func useTempDB(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"DB_DRIVER", "DB_DSN", "DB_MAX_OPEN_CONNS", "LOG_LEVEL", "PORT"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "store.db")
	t.Setenv("DB_PATH", path)
	return path
}

// execute runs one storectl invocation on a fresh command tree.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "storectl %s", strings.Join(args, " "))
	return out
}

// seedReport files a report directly through the repositories, since
// reports are created by users over HTTP rather than by operators.
func seedReport(t *testing.T, path string, reporter uuid.UUID) uuid.UUID {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.Open(context.Background(), database.Config{Backend: query.SQLite, Path: path}, logger)
	require.NoError(t, err)
	defer db.Close()

	r := model.CommentReport{
		CommentID: uuid.New(), SnippetID: uuid.New(), ReporterID: reporter,
		Reason: model.ReasonSpam, Details: "link farm in the comments",
	}
	require.NoError(t, sqlstore.New(db, logger).Repositories().Reports.Create(context.Background(), &r))
	return r.ID
}

func TestMigrate(t *testing.T) {
	useTempDB(t)

	assert.Equal(t, "sqlite schema version 0\n", mustExecute(t, "migrate", "version"))
	assert.Equal(t, "sqlite schema version 1\n", mustExecute(t, "migrate", "up"))
	assert.Equal(t, "sqlite schema version 1\n", mustExecute(t, "migrate", "up"), "second run is a no-op")
	assert.Equal(t, "sqlite schema version 0\n", mustExecute(t, "migrate", "down"))

	_, err := execute(t, "migrate", "down", "zero")
	assert.ErrorContains(t, err, "positive integer")
}

func TestCommands_RequireSchema(t *testing.T) {
	useTempDB(t)

	for _, args := range [][]string{
		{"reports", "list"},
		{"users", "add", "ann"},
		{"stats"},
	} {
		_, err := execute(t, args...)
		assert.ErrorContains(t, err, "migrate up", args)
	}
}

func TestUsers(t *testing.T) {
	useTempDB(t)
	mustExecute(t, "migrate", "up")

	out := mustExecute(t, "users", "add", "ann", "--email", "ann@example.com")
	id, err := uuid.Parse(strings.TrimSpace(out))
	require.NoError(t, err, out)

	out = mustExecute(t, "users", "get", id.String(), "--format", "json")
	var u model.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "ann", u.Login)
	assert.Equal(t, "ann@example.com", u.Email)

	out = mustExecute(t, "users", "get", id.String())
	assert.Contains(t, out, "ann@example.com")

	_, err = execute(t, "users", "get", uuid.NewString())
	assert.ErrorContains(t, err, "not found")
}

func TestReports(t *testing.T) {
	path := useTempDB(t)
	mustExecute(t, "migrate", "up")
	reporter := uuid.MustParse(strings.TrimSpace(mustExecute(t, "users", "add", "reporter")))
	moderator := strings.TrimSpace(mustExecute(t, "users", "add", "moderator"))
	reportID := seedReport(t, path, reporter)

	out := mustExecute(t, "reports", "list", "--status", "pending,reviewing", "--reporter", reporter.String(), "--format", "json")
	var page query.PageResult[model.CommentReport]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, reportID, page.Items[0].ID)

	out = mustExecute(t, "reports", "queue")
	assert.Contains(t, out, "link farm")
	assert.Contains(t, out, "reporter")

	out = mustExecute(t, "reports", "handle", reportID.String(), "--moderator", moderator, "--note", "removed")
	assert.Equal(t, "report "+reportID.String()+" is now resolved\n", out)

	_, err := execute(t, "reports", "handle", reportID.String(), "--moderator", moderator)
	assert.ErrorContains(t, err, "conflict")

	t.Run("rejected flags", func(t *testing.T) {
		for _, args := range [][]string{
			{"reports", "list", "--sort", "size"},
			{"reports", "list", "--status", "escalated"},
			{"reports", "list", "--reporter", "42"},
			{"reports", "list", "--format", "yaml"},
			{"reports", "handle", reportID.String()},
		} {
			_, err := execute(t, args...)
			assert.Error(t, err, args)
		}
	})

	out = mustExecute(t, "stats", "--format", "json")
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(1), stats.Reports.Total)
	assert.Equal(t, int64(1), stats.Reports.Resolved)
	assert.Zero(t, stats.Messages.Total)
	assert.Zero(t, stats.AccessLogs.Total)

	out = mustExecute(t, "stats")
	assert.Contains(t, out, "High priority")
}

func TestPurge(t *testing.T) {
	useTempDB(t)
	mustExecute(t, "migrate", "up")

	_, err := execute(t, "purge")
	assert.ErrorContains(t, err, "nothing to purge")

	out := mustExecute(t, "purge", "--notifications", "720h", "--access-logs", "2160h")
	assert.Contains(t, out, "purged 0 notifications older than 720h0m0s")
	assert.Contains(t, out, "purged 0 access logs older than 2160h0m0s")
}
