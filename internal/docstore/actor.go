package docstore

import "context"

type actorKey struct{}

// WithActor attaches the acting user identity to ctx. Stores read it back
// during commit to evaluate write rules; the PostgreSQL backend also
// exports it to the session (`app.actor`) so database-side triggers can
// enforce the same rules.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the acting identity attached by WithActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}
