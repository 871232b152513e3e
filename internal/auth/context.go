package auth

import (
	"context"

	"gibiertrace/pkg/domain"
)

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to ctx.
func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*domain.Actor)
	if !ok || v == nil {
		return domain.Actor{}, false
	}
	return *v, true
}
