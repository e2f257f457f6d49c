package store

import (
	"context"

	"gamelog/pkg/domain"
)

// Store defines persistence operations for users and their game logs.
// Game reads and writes are always scoped by owner id.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// games
	CreateGame(domain.Game) error
	// UpdateGame replaces every editable field of the owner's game.
	// It reports false when no such game belongs to the owner.
	UpdateGame(domain.Game) (bool, error)
	GetGame(ownerID, id string) (domain.Game, bool, error)
	// ListGamesByOwner orders by completion date, newest first.
	ListGamesByOwner(ownerID string) ([]domain.Game, error)
	DeleteGame(ownerID, id string) (bool, error)
}

// SessionStore issues and checks access tokens.
type SessionStore interface {
	Issue(userID string) (IssuedSession, error)
	Validate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
