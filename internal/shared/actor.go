package shared

import (
	"context"
	"errors"
)

// Actor identifies the authenticated user performing a mutation. Stock
// adjustments and purchase mutations refuse to run without one; there is no
// fallback system identity.
type Actor struct {
	ID    int64
	Name  string
	Email string
	Role  string
}

// RoleAdmin unlocks destructive admin-only endpoints.
const RoleAdmin = "admin"

// ErrActorRequired indicates a mutation was attempted without an
// authenticated actor.
var ErrActorRequired = errors.New("authenticated actor required")

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.ID != 0
}

// RequireActor returns the context actor or ErrActorRequired.
func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, ErrActorRequired
	}
	return actor, nil
}
