// ABOUTME: Startup provisioning of configured users and conversation fixtures
// ABOUTME: Idempotent so restarts against a durable store do not duplicate

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/store"
)

// provisionUsers seeds configured users into the store. Existing usernames
// are left alone.
func provisionUsers(ctx context.Context, st store.Store, users []config.UserConfig, logger *slog.Logger) error {
	for _, u := range users {
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", u.Username, err)
		}

		err = st.CreateUser(ctx, &store.User{
			ID:           uuid.New().String(),
			Username:     u.Username,
			PasswordHash: hash,
			Email:        u.Email,
			CreatedAt:    time.Now(),
		})
		if errors.Is(err, store.ErrDuplicateUser) {
			logger.Debug("user already provisioned", "username", u.Username)
			continue
		}
		if err != nil {
			return fmt.Errorf("creating user %s: %w", u.Username, err)
		}
		logger.Info("user provisioned", "username", u.Username)
	}
	return nil
}

// provisionConversations seeds configured conversation fixtures. A fixture
// whose owner already has a conversation of the same name is skipped.
func provisionConversations(ctx context.Context, st store.Store, fixtures []config.ConversationConfig, logger *slog.Logger) error {
	for _, fixture := range fixtures {
		owner, err := st.GetUserByUsername(ctx, fixture.Owner)
		if err != nil {
			return fmt.Errorf("looking up owner %s: %w", fixture.Owner, err)
		}

		existing, err := st.ListConversationsByOwner(ctx, owner.ID)
		if err != nil {
			return fmt.Errorf("listing conversations for %s: %w", fixture.Owner, err)
		}
		if hasConversationNamed(existing, fixture.Name) {
			logger.Debug("conversation already provisioned",
				"name", fixture.Name,
				"owner", fixture.Owner)
			continue
		}

		now := time.Now()
		conv := &store.Conversation{
			ID:        uuid.New().String(),
			Name:      fixture.Name,
			OwnerID:   owner.ID,
			CreatedAt: now,
		}
		for _, msg := range fixture.Messages {
			author := msg.Author
			if author == "" {
				author = owner.ID
			}
			conv.Messages = append(conv.Messages, &store.Message{
				ID:             uuid.New().String(),
				ConversationID: conv.ID,
				Text:           msg.Text,
				Author:         author,
				CreatedAt:      now,
			})
		}

		if err := st.CreateConversation(ctx, conv); err != nil {
			return fmt.Errorf("creating conversation %s: %w", fixture.Name, err)
		}
		logger.Info("conversation provisioned",
			"name", fixture.Name,
			"owner", fixture.Owner,
			"messages", len(conv.Messages))
	}
	return nil
}

func hasConversationNamed(convs []*store.Conversation, name string) bool {
	for _, conv := range convs {
		if conv.Name == name {
			return true
		}
	}
	return false
}
