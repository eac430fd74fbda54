// ABOUTME: Store interface and data types for parley persistence
// ABOUTME: Defines User, Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// AIAuthor is the synthetic actor used for seed and automated reply messages.
const AIAuthor = "AI"

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when provisioning a user whose username is taken
var ErrDuplicateUser = errors.New("user already exists")

// User is an account that can own conversations. Users are provisioned at
// startup and immutable afterwards.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash of the password
	Email        string
	CreatedAt    time.Time
}

// Conversation is an append-only thread of messages owned by exactly one user.
type Conversation struct {
	ID        string
	Name      string
	OwnerID   string
	Messages  []*Message
	CreatedAt time.Time
}

// LastMessage returns the most recently appended message, or nil for an
// empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Message is a single immutable entry in a conversation. Author is either a
// user ID or AIAuthor.
type Message struct {
	ID             string
	ConversationID string
	Text           string
	Author         string
	CreatedAt      time.Time
}

// Store defines the interface for user and conversation persistence.
// Implementations are safe for concurrent use, but callers that need
// read-modify-write atomicity across calls (e.g. the auto-reply last-message
// check) must serialize per conversation themselves.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsByOwner(ctx context.Context, ownerID string) ([]*Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID string, msg *Message) error

	// Close releases any resources held by the store
	Close() error
}
