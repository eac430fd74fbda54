// ABOUTME: Tests for the authorization gate and JWT credential handling
// ABOUTME: Covers authenticate, resolve round-trips, and ownership checks

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func newTestGate(t *testing.T) (*Gate, *store.MemoryStore, *store.User) {
	t.Helper()

	s := store.NewMemoryStore()
	hash, err := HashPassword("password1")
	require.NoError(t, err)

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     "user1",
		PasswordHash: hash,
		Email:        "user1@example.com",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateUser(t.Context(), user))

	gate := NewGate(s, NewJWTVerifier([]byte("test-secret")), time.Hour, nil)
	return gate, s, user
}

func TestGate_AuthenticateAndResolveRoundTrip(t *testing.T) {
	gate, _, user := newTestGate(t)
	ctx := t.Context()

	authed, token, err := gate.Authenticate(ctx, "user1", "password1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, user.ID, authed.ID)

	resolved, err := gate.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestGate_AuthenticateRejectsBadPairs(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := t.Context()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "user1", "wrong"},
		{"unknown user", "nobody", "password1"},
		{"empty password", "user1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := gate.Authenticate(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestGate_ResolveRejectsBadCredentials(t *testing.T) {
	gate, _, user := newTestGate(t)
	ctx := t.Context()

	tests := []struct {
		name       string
		credential string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"raw user id is not a credential", user.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Resolve(ctx, tt.credential)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestGate_ResolveRejectsExpiredToken(t *testing.T) {
	gate, _, user := newTestGate(t)

	verifier := NewJWTVerifier([]byte("test-secret"))
	expired, err := verifier.Generate(user.ID, -time.Minute)
	require.NoError(t, err)

	_, err = gate.Resolve(t.Context(), expired)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGate_ResolveRejectsTokenForDeletedUser(t *testing.T) {
	gate, _, _ := newTestGate(t)

	verifier := NewJWTVerifier([]byte("test-secret"))
	token, err := verifier.Generate("ghost-user-id", time.Hour)
	require.NoError(t, err)

	_, err = gate.Resolve(t.Context(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGate_AuthorizeOwnership(t *testing.T) {
	gate, _, user := newTestGate(t)

	owned := &store.Conversation{ID: "c1", OwnerID: user.ID}
	other := &store.Conversation{ID: "c2", OwnerID: "someone-else"}

	assert.NoError(t, gate.AuthorizeOwnership(user, owned))
	assert.ErrorIs(t, gate.AuthorizeOwnership(user, other), ErrForbidden)
	assert.ErrorIs(t, gate.AuthorizeOwnership(nil, owned), ErrForbidden)
	assert.ErrorIs(t, gate.AuthorizeOwnership(user, nil), ErrForbidden)
}

func TestJWTVerifier_RejectsWrongSecret(t *testing.T) {
	issuer := NewJWTVerifier([]byte("secret-a"))
	verifier := NewJWTVerifier([]byte("secret-b"))

	token, err := issuer.Generate("user-1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_RejectsForeignIssuer(t *testing.T) {
	secret := []byte("test-secret")
	verifier := NewJWTVerifier(secret)

	cases := map[string]string{
		"foreign issuer": "someone-else",
		"missing issuer": "",
	}
	for name, iss := range cases {
		t.Run(name, func(t *testing.T) {
			claims := jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    iss,
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
			require.NoError(t, err)

			_, err = verifier.Verify(signed)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestUserContextRoundTrip(t *testing.T) {
	user := &store.User{ID: "u1", Username: "user1"}

	ctx := WithUser(t.Context(), user)
	assert.Equal(t, user, UserFromContext(ctx))
	assert.Nil(t, UserFromContext(t.Context()))
}
