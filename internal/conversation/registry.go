// ABOUTME: Subscription registry mapping conversations to live subscriber connections
// ABOUTME: Thread-safe add, remove, and snapshot for broadcast fan-out

package conversation

import (
	"log/slog"
	"sync"
)

// Subscriber is a live connection handle that can receive broadcast payloads.
// Handles are owned by the transport layer; the registry only references them.
type Subscriber interface {
	// ID uniquely identifies the connection for idempotent add/remove.
	ID() string
	// Send delivers a payload best-effort. It must not block.
	Send(payload []byte) error
}

// Registry maintains the live mapping from conversation ID to the set of
// active subscriber connections.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]Subscriber // conversationID -> subscriberID -> handle
	logger      *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subscribers: make(map[string]map[string]Subscriber),
		logger:      logger.With("component", "registry"),
	}
}

// Subscribe adds the subscriber to the conversation's set. Adding the same
// subscriber twice is a no-op.
func (r *Registry) Subscribe(conversationID string, sub Subscriber) {
	r.mu.Lock()
	set, ok := r.subscribers[conversationID]
	if !ok {
		set = make(map[string]Subscriber)
		r.subscribers[conversationID] = set
	}
	set[sub.ID()] = sub
	r.mu.Unlock()

	r.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"subscriber_id", sub.ID())
}

// Unsubscribe removes the subscriber from the conversation's set. The map
// entry is deleted when the set becomes empty so idle conversations hold no
// registry memory.
func (r *Registry) Unsubscribe(conversationID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subscribers[conversationID]
	if !ok {
		return
	}
	if _, exists := set[sub.ID()]; !exists {
		return
	}

	delete(set, sub.ID())
	if len(set) == 0 {
		delete(r.subscribers, conversationID)
	}

	r.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"subscriber_id", sub.ID())
}

// Snapshot returns the subscribers registered for the conversation at call
// time. Fan-out iterates the snapshot, never the live set.
func (r *Registry) Snapshot(conversationID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.subscribers[conversationID]
	if !ok || len(set) == 0 {
		return nil
	}

	targets := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	return targets
}

// Len reports the number of subscribers for a conversation.
func (r *Registry) Len(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers[conversationID])
}
