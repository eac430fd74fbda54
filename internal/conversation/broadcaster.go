// ABOUTME: Broadcast dispatcher fanning message.created events out to subscribers
// ABOUTME: Serializes once, delivers best-effort to a snapshot of the registry

package conversation

import (
	"encoding/json"
	"log/slog"

	"github.com/2389/parley/internal/store"
)

// Broadcaster pushes newly created messages to every subscriber of their
// conversation. Delivery is best-effort: a failed send is skipped and logged,
// never retried, and never removes the subscription — removal is driven only
// by the connection's own disconnect.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry. Pass nil
// logger for default.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Broadcast serializes the message once and sends it to the subscribers
// registered for the conversation at call time. Subscribers added after the
// snapshot do not receive this broadcast.
func (b *Broadcaster) Broadcast(conversationID string, msg *store.Message) {
	targets := b.registry.Snapshot(conversationID)
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(Event{
		Event: EventMessageCreated,
		Data:  FormatMessage(msg),
	})
	if err != nil {
		b.logger.Error("failed to encode broadcast event",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"error", err)
		return
	}

	delivered := 0
	for _, sub := range targets {
		if err := sub.Send(payload); err != nil {
			b.logger.Debug("dropped event for subscriber",
				"conversation_id", conversationID,
				"subscriber_id", sub.ID(),
				"error", err)
			continue
		}
		delivered++
	}

	b.logger.Debug("message broadcast",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"subscribers", len(targets),
		"delivered", delivered)
}
