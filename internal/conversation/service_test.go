// ABOUTME: Tests for the message pipeline and deferred auto-reply
// ABOUTME: Covers ownership gating, side-effect fan-out, reply timing and no-op

package conversation

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/store"
)

const testReplyDelay = 50 * time.Millisecond

type pipelineFixture struct {
	store    *store.MemoryStore
	registry *Registry
	service  *Service
	owner    *store.User
	other    *store.User
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	s := store.NewMemoryStore()
	ctx := t.Context()

	owner := &store.User{ID: uuid.New().String(), Username: "user1", CreatedAt: time.Now()}
	other := &store.User{ID: uuid.New().String(), Username: "user2", CreatedAt: time.Now()}
	require.NoError(t, s.CreateUser(ctx, owner))
	require.NoError(t, s.CreateUser(ctx, other))

	registry := NewRegistry(nil)
	broadcaster := NewBroadcaster(registry, nil)
	gate := auth.NewGate(s, auth.NewJWTVerifier([]byte("test")), time.Hour, nil)

	service := New(s, gate, broadcaster, testReplyDelay, nil)
	t.Cleanup(service.Close)

	return &pipelineFixture{
		store:    s,
		registry: registry,
		service:  service,
		owner:    owner,
		other:    other,
	}
}

func TestService_StartConversationSeedsAIMessage(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "Test")
	require.NoError(t, err)
	assert.Equal(t, "Test", conv.Name)
	assert.Equal(t, f.owner.ID, conv.OwnerID)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, store.AIAuthor, conv.Messages[0].Author)
	assert.Equal(t, SeedMessageText, conv.Messages[0].Text)

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
}

func TestService_AppendMessageReturnsSynchronously(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "Test")
	require.NoError(t, err)

	msg, err := f.service.AppendMessage(ctx, f.owner, conv.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, f.owner.ID, msg.Author)
	assert.Equal(t, conv.ID, msg.ConversationID)

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, msg.ID, stored.Messages[1].ID)
}

func TestService_AppendMessageUnknownConversation(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.service.AppendMessage(t.Context(), f.owner, "missing", "hi")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_AppendMessageRejectsNonOwner(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "private")
	require.NoError(t, err)

	_, err = f.service.AppendMessage(ctx, f.other, conv.ID, "let me in")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	// Rejected appends leave no trace
	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 1)
}

func TestService_AppendMessageBroadcastsToSubscribers(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "Test")
	require.NoError(t, err)

	sub := newFakeSubscriber()
	f.registry.Subscribe(conv.ID, sub)

	_, err = f.service.AppendMessage(ctx, f.owner, conv.ID, "hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sub.received()) == 1
	}, time.Second, 5*time.Millisecond, "subscriber should receive the broadcast")
}

func TestService_BroadcastsPreserveAppendOrder(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "ordered")
	require.NoError(t, err)

	sub := newFakeSubscriber()
	f.registry.Subscribe(conv.ID, sub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Go(func() {
			_, err := f.service.AppendMessage(ctx, f.owner, conv.ID, "msg")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)

	// Only the human appends; a reply may land later but not yet.
	var wantIDs []string
	for _, msg := range stored.Messages[1:] {
		if msg.Author == f.owner.ID {
			wantIDs = append(wantIDs, msg.ID)
		}
	}
	require.Len(t, wantIDs, 8)

	// Compare human-authored events only; the auto-reply may or may not
	// have landed yet.
	var gotIDs []string
	for _, payload := range sub.received() {
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, EventMessageCreated, event.Event)
		if event.Data.Attributes.Author == f.owner.ID {
			gotIDs = append(gotIDs, event.Data.ID)
		}
	}
	assert.Equal(t, wantIDs, gotIDs, "events must arrive in store order")
}

func TestService_AutoReplyFiresOnceAfterDelay(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "Test")
	require.NoError(t, err)

	sub := newFakeSubscriber()
	f.registry.Subscribe(conv.ID, sub)

	_, err = f.service.AppendMessage(ctx, f.owner, conv.ID, "hello?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := f.store.GetConversation(ctx, conv.ID)
		return err == nil && len(stored.Messages) == 3
	}, time.Second, 5*time.Millisecond, "auto-reply should append a third message")

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	last := stored.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, store.AIAuthor, last.Author)
	assert.Equal(t, AutoReplyText, last.Text)

	// Subscriber saw both the human message and the auto-reply
	require.Eventually(t, func() bool {
		return len(sub.received()) == 2
	}, time.Second, 5*time.Millisecond)

	// No further replies arrive after another delay window
	time.Sleep(3 * testReplyDelay)
	final, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, final.Messages, 3, "auto-reply must fire at most once per human message")
}

func TestService_AutoReplyNoOpsOnMessageBurst(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "Test")
	require.NoError(t, err)

	// Two human messages land inside one delay window; both timers fire but
	// only the first append a reply.
	_, err = f.service.AppendMessage(ctx, f.owner, conv.ID, "first")
	require.NoError(t, err)
	_, err = f.service.AppendMessage(ctx, f.owner, conv.ID, "second")
	require.NoError(t, err)

	time.Sleep(4 * testReplyDelay)

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	// seed + 2 human + exactly 1 automated reply
	require.Len(t, stored.Messages, 4)
	assert.Equal(t, store.AIAuthor, stored.LastMessage().Author)
	aiCount := 0
	for _, msg := range stored.Messages[1:] {
		if msg.Author == store.AIAuthor {
			aiCount++
		}
	}
	assert.Equal(t, 1, aiCount)
}

func TestService_CloseCancelsPendingReplies(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "Test")
	require.NoError(t, err)

	_, err = f.service.AppendMessage(ctx, f.owner, conv.ID, "hello?")
	require.NoError(t, err)

	f.service.Close()
	time.Sleep(3 * testReplyDelay)

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2, "no auto-reply after Close")
}

func TestService_GetConversationChecksOwnership(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "mine")
	require.NoError(t, err)

	got, err := f.service.GetConversation(ctx, f.owner, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = f.service.GetConversation(ctx, f.other, conv.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.service.GetConversation(ctx, f.owner, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ListConversationsFiltersByOwner(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	_, err := f.service.StartConversation(ctx, f.owner, "one")
	require.NoError(t, err)
	_, err = f.service.StartConversation(ctx, f.owner, "two")
	require.NoError(t, err)
	_, err = f.service.StartConversation(ctx, f.other, "theirs")
	require.NoError(t, err)

	convs, err := f.service.ListConversations(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	for _, conv := range convs {
		assert.Equal(t, f.owner.ID, conv.OwnerID)
	}
}

func TestService_AuthorizeSubscription(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := t.Context()

	conv, err := f.service.StartConversation(ctx, f.owner, "stream")
	require.NoError(t, err)

	assert.NoError(t, f.service.AuthorizeSubscription(ctx, f.owner, conv.ID))
	assert.ErrorIs(t, f.service.AuthorizeSubscription(ctx, f.other, conv.ID), auth.ErrForbidden)
	assert.ErrorIs(t, f.service.AuthorizeSubscription(ctx, f.owner, "missing"), store.ErrNotFound)
}

func TestReplyScheduler_CancelPreventsRun(t *testing.T) {
	fired := make(chan string, 1)
	s := NewReplyScheduler(30*time.Millisecond, func(id string) { fired <- id }, nil)
	defer s.Stop()

	handle := s.Schedule("conv-1")
	require.NotNil(t, handle)
	assert.True(t, handle.Cancel())
	assert.Equal(t, 0, s.PendingCount())

	select {
	case <-fired:
		t.Fatal("cancelled reply should not run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReplyScheduler_StopRejectsNewWork(t *testing.T) {
	s := NewReplyScheduler(10*time.Millisecond, func(string) {}, nil)
	s.Stop()
	assert.Nil(t, s.Schedule("conv-1"))
}
