// ABOUTME: Deferred reply scheduler running delayed tasks on cancellable timers
// ABOUTME: Timer-based, never occupies a worker for the delay duration

package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReplyScheduler runs a function for a conversation after a fixed delay.
// Each Schedule call arms an independent timer; the stale-timer case is the
// callback's problem (the pipeline's last-message check makes it a no-op).
type ReplyScheduler struct {
	delay  time.Duration
	fn     func(conversationID string)
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*ReplyHandle // handle ID -> pending timer
	stopped bool
}

// ReplyHandle identifies one scheduled reply and allows cancelling it before
// it fires.
type ReplyHandle struct {
	id        string
	timer     *time.Timer
	scheduler *ReplyScheduler
}

// Cancel stops the timer if it has not fired yet. Returns true if the reply
// was prevented from running.
func (h *ReplyHandle) Cancel() bool {
	stopped := h.timer.Stop()
	h.scheduler.remove(h.id)
	return stopped
}

// NewReplyScheduler creates a scheduler invoking fn after delay. Pass nil
// logger for default.
func NewReplyScheduler(delay time.Duration, fn func(conversationID string), logger *slog.Logger) *ReplyScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplyScheduler{
		delay:   delay,
		fn:      fn,
		logger:  logger.With("component", "reply-scheduler"),
		pending: make(map[string]*ReplyHandle),
	}
}

// Schedule arms a timer for the conversation. The returned handle may be used
// to cancel the reply before the delay expires; callers that want the
// reference behavior simply drop it.
func (s *ReplyScheduler) Schedule(conversationID string) *ReplyHandle {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Debug("schedule ignored, scheduler stopped",
			"conversation_id", conversationID)
		return nil
	}

	handle := &ReplyHandle{
		id:        uuid.New().String(),
		scheduler: s,
	}
	handle.timer = time.AfterFunc(s.delay, func() {
		s.remove(handle.id)
		s.fn(conversationID)
	})
	s.pending[handle.id] = handle
	s.mu.Unlock()

	s.logger.Debug("reply scheduled",
		"conversation_id", conversationID,
		"delay", s.delay)
	return handle
}

// Stop cancels all pending timers and rejects further scheduling. Used on
// shutdown so background replies do not outlive the service.
func (s *ReplyScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, handle := range s.pending {
		handle.timer.Stop()
		delete(s.pending, id)
	}
}

// PendingCount reports how many timers are currently armed.
func (s *ReplyScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *ReplyScheduler) remove(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}
