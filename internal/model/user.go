// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user account.
//
// Users are owned by the wider application; this store only needs enough of
// them to show who reported, handled, sent or triggered something.
//
// WHY uuid.UUID AND NOT string?
// Identifiers come back from the database as text on SQLite and MySQL and as
// a native uuid on Postgres. The query engine normalizes all of them to
// uuid.UUID, so two IDs compare equal no matter which backend produced them.
type User struct {
	ID        uuid.UUID `json:"id"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserSummary is the shallow form of a User reached through an outer join
// (reporter, handler, sender, actor). It is nil on the parent when the join
// found nothing.
type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	Login     string    `json:"login"`
	AvatarURL string    `json:"avatarUrl"`
}
