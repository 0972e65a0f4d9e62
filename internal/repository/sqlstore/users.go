package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/query"
	"github.com/sakif/snippet-store/internal/repository"
)

// UserStore keeps the minimal user rows other tables point at.
type UserStore struct {
	*Store
}

var _ repository.UserRepository = (*UserStore)(nil)

const userColumnList = `id, login, email, avatar_url, created_at`

func scanUser(r *query.Row) model.User {
	return model.User{
		ID:        r.ID("id"),
		Login:     r.String("login"),
		Email:     r.String("email"),
		AvatarURL: r.String("avatar_url"),
		CreatedAt: r.Time("created_at"),
	}
}

// Create inserts u, assigning an ID and creation time when they are unset.
// A taken login fails with apperror.ErrConflict.
func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = s.timestamp()

	_, err := s.exec1(ctx, "insert user",
		`INSERT INTO users (id, login, email, avatar_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Login, u.Email, u.AvatarURL, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: creating user: %w", conflict(err, "user", u.Login))
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := s.exec.WithConn(ctx, func(ctx context.Context, sess *query.Session) error {
		var err error
		u, err = getOne(ctx, sess, "get user",
			`SELECT `+userColumnList+` FROM users WHERE id = ?`, scanUser, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting user: %w", notFound(err, "user", id))
	}
	return &u, nil
}
