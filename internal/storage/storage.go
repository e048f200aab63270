package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// User represents a persisted account record.
type User struct {
	ID        string
	Username  string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a durable chat message. The author fields are immutable after
// creation; ID and CreatedAt are assigned by the store, never by clients.
type Message struct {
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

// Store defines persistence operations used by the server.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	CreateMessage(ctx context.Context, authorID, authorName, text string) (*Message, error)
	GetMessageByID(ctx context.Context, id string) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	ListMessages(ctx context.Context, limit int) ([]Message, error)
}
