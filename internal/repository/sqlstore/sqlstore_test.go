package sqlstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// TESTING AGAINST REAL SQL:
// Every test gets its own migrated in-memory SQLite database and a clock it
// controls. The repositories are exercised through their interfaces, the
// same way the services use them.

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a manual clock. Tests run sequentially, so it needs no lock.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	repos repository.Repositories
	store *Store
	clock *testClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.Open(context.Background(), database.Config{Backend: query.SQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	clock := &testClock{t: epoch}
	store := New(db, logger, append([]Option{WithClock(clock.Now)}, opts...)...)
	return &testEnv{repos: store.Repositories(), store: store, clock: clock}
}

func (e *testEnv) user(t *testing.T, login string) model.User {
	t.Helper()
	u := model.User{Login: login, AvatarURL: "https://avatars.example/" + login}
	require.NoError(t, e.repos.Users.Create(context.Background(), &u))
	return u
}

func ptr[T any](v T) *T { return &v }

// =========================================================================
// USERS
// =========================================================================

func TestUsers_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.user(t, "ann")
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, epoch, u.CreatedAt)

	got, err := env.repos.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "ann", got.Login)
	assert.Equal(t, u.AvatarURL, got.AvatarURL)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))
}

func TestUsers_DuplicateLoginIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "ann")

	err := env.repos.Users.Create(context.Background(), &model.User{Login: "ann"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUsers_GetMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.repos.Users.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "user not found")
}

func TestTimestamp_TruncatesToMicroseconds(t *testing.T) {
	env := newTestEnv(t)
	env.clock.t = epoch.Add(1234567 * time.Nanosecond)
	assert.Equal(t, epoch.Add(1234*time.Microsecond), env.store.timestamp())
}
