package middleware

import (
	"context"

	"talento-local/internal/models"
)

type contextKey string

const (
	contextActorKey     contextKey = "actor"
	contextRequestIDKey contextKey = "request_id"
)

// WithActor returns ctx carrying the authenticated actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextActorKey).(models.Actor)
	return actor, ok
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextRequestIDKey).(string)
	return id
}
