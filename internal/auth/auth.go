package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// ParseRole accepts any casing of a known role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}

// SystemActor is used by background jobs that act with admin rights.
var SystemActor = Actor{ID: uuid.Nil, Role: RoleAdmin}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenVerifier validates HS256 bearer tokens issued by the identity service.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret []byte, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: secret, issuer: issuer}
}

// Verify parses a raw token and returns the actor it names. The role claim is trusted verbatim.
func (v *TokenVerifier) Verify(raw string) (Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: subject is not a UUID", ErrInvalidToken)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Actor{ID: id, Role: role}, nil
}

// Issue signs a token for actor. Used by operator tooling and tests; production
// tokens come from the identity service.
func (v *TokenVerifier) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor stored by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
