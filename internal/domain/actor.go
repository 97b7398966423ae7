package domain

import "context"

// Actor identifies the authenticated user performing a mutation. Manager
// privilege gates approvals, close acceptance, and admin resets.
type Actor struct {
	ID        string
	Name      string
	IsManager bool
}

type actorKey struct{}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the actor set by the auth middleware. The second
// return value is false for unauthenticated requests.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
