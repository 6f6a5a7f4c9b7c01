package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated caller id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the caller id; zero means absent. Mutating
// operations must reject a zero actor rather than fall back to a default.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
