package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

func TestDrafts_OptimisticSave(t *testing.T) {
	env := newTestEnv(t)
	ann, bob := env.user(t, "ann"), env.user(t, "bob")
	ctx := context.Background()

	d := model.Draft{UserID: ann.ID, RecipientID: &bob.ID, Body: "first"}
	require.NoError(t, env.repos.Drafts.Save(ctx, &d))
	assert.Equal(t, int32(1), d.Version)

	// Two editors load version 1.
	mine, theirs := d, d

	env.clock.Advance(time.Minute)
	mine.Body = "mine"
	require.NoError(t, env.repos.Drafts.Save(ctx, &mine))
	assert.Equal(t, int32(2), mine.Version)

	theirs.Body = "theirs"
	err := env.repos.Drafts.Save(ctx, &theirs)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, int32(1), theirs.Version, "a failed save leaves the version alone")

	got, err := env.repos.Drafts.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Body)
	assert.Equal(t, int32(2), got.Version)
	assert.Equal(t, bob.ID, *got.RecipientID)
	assert.Nil(t, got.ConversationID)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	ghost := model.Draft{ID: uuid.New(), UserID: ann.ID, Body: "x", Version: 3}
	assert.ErrorIs(t, env.repos.Drafts.Save(ctx, &ghost), apperror.ErrNotFound)
}

func TestDrafts_ListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ann, bob := env.user(t, "ann"), env.user(t, "bob")
	ctx := context.Background()

	var older model.Draft
	for i, body := range []string{"alpha", "beta", "gamma"} {
		d := model.Draft{UserID: ann.ID, Body: body}
		require.NoError(t, env.repos.Drafts.Save(ctx, &d))
		if i == 0 {
			older = d
		}
		env.clock.Advance(time.Minute)
	}
	require.NoError(t, env.repos.Drafts.Save(ctx, &model.Draft{UserID: bob.ID, Body: "bob's"}))

	// Editing the oldest draft moves it to the front of the default order.
	older.Body = "alpha v2"
	require.NoError(t, env.repos.Drafts.Save(ctx, &older))

	page, err := env.repos.Drafts.List(ctx, repository.DraftFilter{UserID: &ann.ID}, query.Sort{}, query.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, older.ID, page.Items[0].ID)

	page, err = env.repos.Drafts.List(ctx, repository.DraftFilter{UserID: &ann.ID},
		query.Sort{Token: repository.DraftSortCreated, Direction: query.Ascending}, query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, older.ID, page.Items[0].ID)
	assert.Equal(t, "gamma", page.Items[2].Body)

	assert.ErrorIs(t, env.repos.Drafts.Delete(ctx, bob.ID, older.ID), apperror.ErrNotFound, "not bob's draft")
	require.NoError(t, env.repos.Drafts.Delete(ctx, ann.ID, older.ID))
	assert.ErrorIs(t, env.repos.Drafts.Delete(ctx, ann.ID, older.ID), apperror.ErrNotFound)
}
