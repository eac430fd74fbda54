// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithUser/UserFromContext for propagating the resolved user

package auth

import (
	"context"

	"github.com/2389/parley/internal/store"
)

// userContextKey is the key type for storing the resolved user in context.Context.
type userContextKey struct{}

// WithUser returns a new context with the resolved user attached.
func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the resolved user from the context, returning nil
// if not present.
func UserFromContext(ctx context.Context) *store.User {
	val := ctx.Value(userContextKey{})
	if val == nil {
		return nil
	}
	user, ok := val.(*store.User)
	if !ok {
		return nil
	}
	return user
}
