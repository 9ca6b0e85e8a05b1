package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole("doctor")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, r)

	_, err = ParseRole("nurse")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestIssueAndVerify(t *testing.T) {
	v := NewTokenVerifier([]byte("secret"), "clinic")
	actor := Actor{ID: uuid.New(), Role: RolePatient}

	tok, err := v.Issue(actor, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestVerifyRejects(t *testing.T) {
	v := NewTokenVerifier([]byte("secret"), "clinic")
	actor := Actor{ID: uuid.New(), Role: RoleAdmin}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenVerifier([]byte("other"), "clinic")
		tok, err := other.Issue(actor, time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := v.Issue(actor, -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenVerifier([]byte("secret"), "someone-else")
		tok, err := other.Issue(actor, time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uuid.NewString(),
				Issuer:    "clinic",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: "NURSE",
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	actor := Actor{ID: uuid.New(), Role: RoleDoctor}
	got, ok := ActorFromContext(WithActor(context.Background(), actor))
	require.True(t, ok)
	assert.True(t, got.Is(RoleDoctor))
}
