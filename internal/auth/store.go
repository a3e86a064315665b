package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pawmart/pawmart/internal/shared"
)

// ErrTokenInvalid indicates a bearer token that does not resolve to an
// active user.
var ErrTokenInvalid = errors.New("auth: invalid or expired token")

const tokenKeyPrefix = "pawmart:token:"

// UserPort loads users behind resolved tokens.
type UserPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

// TokenStore resolves API bearer tokens backed by Redis. Tokens are
// provisioned out of band; the store maps them to live user accounts so role
// changes and deactivations take effect without re-issuing.
type TokenStore struct {
	client *redis.Client
	users  UserPort
	ttl    time.Duration
}

// NewTokenStore constructs the token store.
func NewTokenStore(client *redis.Client, users UserPort, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, users: users, ttl: ttl}
}

type tokenPayload struct {
	UserID int64 `json:"userId"`
}

// Resolve maps a bearer token to its actor. Resolving slides the token's
// expiry window.
func (s *TokenStore) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	if token == "" {
		return shared.Actor{}, ErrTokenInvalid
	}
	key := tokenKeyPrefix + token
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return shared.Actor{}, ErrTokenInvalid
	}
	if err != nil {
		return shared.Actor{}, err
	}

	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return shared.Actor{}, ErrTokenInvalid
	}

	user, err := s.users.GetUser(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return shared.Actor{}, ErrTokenInvalid
		}
		return shared.Actor{}, err
	}
	if !user.Active {
		return shared.Actor{}, ErrTokenInvalid
	}

	if s.ttl > 0 {
		_ = s.client.Expire(ctx, key, s.ttl).Err()
	}
	return shared.Actor{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}, nil
}

// Issue registers a token for the user, mainly for provisioning tooling and
// tests.
func (s *TokenStore) Issue(ctx context.Context, token string, userID int64) error {
	raw, err := json.Marshal(tokenPayload{UserID: userID})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tokenKeyPrefix+token, raw, s.ttl).Err()
}

// Revoke drops a token immediately.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKeyPrefix+token).Err()
}
