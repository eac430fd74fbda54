// ABOUTME: In-memory Store implementation backed by mutex-guarded maps
// ABOUTME: Reference storage for development and tests; state is lost on restart

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation. It is the reference
// storage backend; swap in SQLiteStore for durability.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*User         // keyed by user ID
	usernames     map[string]string        // username -> user ID
	conversations map[string]*Conversation // keyed by conversation ID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		usernames:     make(map[string]string),
		conversations: make(map[string]*Conversation),
	}
}

// CreateUser stores a new user. Usernames are unique.
func (m *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usernames[user.Username]; taken {
		return ErrDuplicateUser
	}

	u := *user
	m.users[u.ID] = &u
	m.usernames[u.Username] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.users[id]
	return &result, nil
}

// CreateConversation stores a new conversation with its seed messages.
func (m *MemoryStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *conv
	c.Messages = copyMessages(conv.Messages)
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID, including its messages.
func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	result.Messages = copyMessages(c.Messages)
	return &result, nil
}

// ListConversationsByOwner returns the conversations owned by the given user,
// ordered by creation time.
func (m *MemoryStore) ListConversationsByOwner(ctx context.Context, ownerID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if c.OwnerID != ownerID {
			continue
		}
		conv := *c
		conv.Messages = copyMessages(c.Messages)
		result = append(result, &conv)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// AppendMessage appends a message to the conversation's sequence.
func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}

	entry := *msg
	entry.ConversationID = conversationID
	c.Messages = append(c.Messages, &entry)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// copyMessages returns a defensive copy so callers never alias internal state.
func copyMessages(msgs []*Message) []*Message {
	if msgs == nil {
		return nil
	}
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		entry := *msg
		result[i] = &entry
	}
	return result
}
