// ABOUTME: Message pipeline orchestrating conversation creation and appends
// ABOUTME: Validates ownership, persists, then broadcasts and schedules the auto-reply

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/store"
)

const (
	// SeedMessageText opens every new conversation, authored by the
	// synthetic actor.
	SeedMessageText = "Hello, how can I help you?"

	// AutoReplyText is the fixed automated response appended after the
	// reply delay.
	AutoReplyText = "AI: I'm sorry, I don't understand. Can you please rephrase that?"

	// DefaultReplyDelay is the reference auto-reply delay.
	DefaultReplyDelay = 2500 * time.Millisecond
)

// Authorizer defines what the pipeline needs from the authorization gate.
type Authorizer interface {
	AuthorizeOwnership(user *store.User, conv *store.Conversation) error
}

// Service is the message pipeline. All conversation mutations flow through
// here so that appends and the auto-reply's last-message check serialize on
// the same per-conversation lock.
type Service struct {
	store       store.Store
	gate        Authorizer
	broadcaster *Broadcaster
	replies     *ReplyScheduler
	logger      *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // conversationID -> mutation lock
}

// New creates the message pipeline. replyDelay <= 0 selects the default.
// Pass nil logger for default.
func New(st store.Store, gate Authorizer, broadcaster *Broadcaster, replyDelay time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if replyDelay <= 0 {
		replyDelay = DefaultReplyDelay
	}
	s := &Service{
		store:       st,
		gate:        gate,
		broadcaster: broadcaster,
		logger:      logger.With("component", "conversation"),
		locks:       make(map[string]*sync.Mutex),
	}
	s.replies = NewReplyScheduler(replyDelay, s.autoReply, logger)
	return s
}

// Close cancels any pending auto-replies.
func (s *Service) Close() {
	s.replies.Stop()
}

// StartConversation creates a conversation owned by the user, seeded with a
// single message authored by the synthetic actor. No broadcast occurs for the
// seed message.
func (s *Service) StartConversation(ctx context.Context, owner *store.User, name string) (*store.Conversation, error) {
	now := time.Now()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   owner.ID,
		CreatedAt: now,
	}
	conv.Messages = []*store.Message{{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Text:           SeedMessageText,
		Author:         store.AIAuthor,
		CreatedAt:      now,
	}}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("conversation started",
		"conversation_id", conv.ID,
		"owner_id", owner.ID)
	return conv, nil
}

// AppendMessage validates ownership, appends the user's message, broadcasts
// it, and returns it. The broadcast runs under the conversation lock so every
// subscriber sees events in store order; sends never block, so holding the
// lock is cheap. The deferred reply is scheduled after the lock is released.
func (s *Service) AppendMessage(ctx context.Context, user *store.User, conversationID, text string) (*store.Message, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if err := s.gate.AuthorizeOwnership(user, conv); err != nil {
		lock.Unlock()
		return nil, err
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Text:           text,
		Author:         user.ID,
		CreatedAt:      time.Now(),
	}
	if err := s.store.AppendMessage(ctx, conversationID, msg); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("appending message: %w", err)
	}
	s.broadcaster.Broadcast(conversationID, msg)
	lock.Unlock()

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"author", msg.Author)

	s.replies.Schedule(conversationID)

	return msg, nil
}

// GetConversation returns the conversation if it exists and the user owns it.
func (s *Service) GetConversation(ctx context.Context, user *store.User, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeOwnership(user, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the conversations owned by the user in creation
// order.
func (s *Service) ListConversations(ctx context.Context, user *store.User) ([]*store.Conversation, error) {
	return s.store.ListConversationsByOwner(ctx, user.ID)
}

// AuthorizeSubscription checks that the user may subscribe to the
// conversation's broadcast stream.
func (s *Service) AuthorizeSubscription(ctx context.Context, user *store.User, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	return s.gate.AuthorizeOwnership(user, conv)
}

// autoReply appends the automated response unless the conversation's last
// message is already authored by the synthetic actor. Runs on the scheduler
// goroutine after the reply delay; failures are logged, never surfaced.
func (s *Service) autoReply(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		s.logger.Warn("auto-reply skipped, conversation lookup failed",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	if last := conv.LastMessage(); last != nil && last.Author == store.AIAuthor {
		s.logger.Debug("auto-reply skipped, last message already automated",
			"conversation_id", conversationID)
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Text:           AutoReplyText,
		Author:         store.AIAuthor,
		CreatedAt:      time.Now(),
	}
	if err := s.store.AppendMessage(ctx, conversationID, msg); err != nil {
		s.logger.Error("auto-reply append failed",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	s.logger.Debug("auto-reply appended",
		"conversation_id", conversationID,
		"message_id", msg.ID)

	s.broadcaster.Broadcast(conversationID, msg)
}

// lockFor returns the mutation lock for a conversation, creating it on first
// use. Lock entries are never removed; conversations are never deleted here.
func (s *Service) lockFor(conversationID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}
