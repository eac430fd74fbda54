// ABOUTME: Authorization gate tying bearer credentials to users and ownership
// ABOUTME: Authenticate issues tokens, Resolve maps tokens back to users

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/parley/internal/store"
)

// Gate errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// UserStore defines what the gate needs from storage
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// Gate resolves credentials to users and checks conversation ownership.
type Gate struct {
	users    UserStore
	tokens   *JWTVerifier
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewGate creates an authorization gate. Pass nil logger for default.
func NewGate(users UserStore, tokens *JWTVerifier, tokenTTL time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Gate{
		users:    users,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "auth"),
	}
}

// Authenticate checks a username/password pair and returns the user along
// with a signed bearer token. Fails with ErrInvalidCredentials on any
// mismatch; the caller cannot distinguish unknown users from bad passwords.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (*store.User, string, error) {
	user, err := g.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := g.tokens.Generate(user.ID, g.tokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("generating token: %w", err)
	}

	g.logger.Debug("user authenticated", "user_id", user.ID, "username", username)
	return user, token, nil
}

// Resolve maps an opaque bearer credential back to a user. Fails with
// ErrUnauthorized for anything that does not verify to a known user.
func (g *Gate) Resolve(ctx context.Context, credential string) (*store.User, error) {
	if credential == "" {
		return nil, ErrUnauthorized
	}

	userID, err := g.tokens.Verify(credential)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := g.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

// AuthorizeOwnership succeeds iff the user owns the conversation.
func (g *Gate) AuthorizeOwnership(user *store.User, conv *store.Conversation) error {
	if user == nil || conv == nil || conv.OwnerID != user.ID {
		return ErrForbidden
	}
	return nil
}

// HashPassword produces a bcrypt hash for storing alongside a user.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
