package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// LocalsActorKey is the router locals key holding the authenticated *Actor.
const LocalsActorKey = "privileged_actor"

var actorCtxKey = &contextKey{"actor"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithActorContext sets the Actor in the given context
func WithActorContext(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext finds the actor from the context.
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey).(*Actor)
	return actor, ok && actor != nil
}

// WithClaimsContext sets the claims in the given context
func WithClaimsContext(ctx context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext extracts the claims from the standard context
func ClaimsFromContext(ctx context.Context) (*JWTClaims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(*JWTClaims)
	return claims, ok && claims != nil
}

// ActorFromRouterContext returns the actor stored by RouteAuthenticator.Protected.
func ActorFromRouterContext(c router.Context) (*Actor, bool) {
	actor, ok := c.Locals(LocalsActorKey).(*Actor)
	return actor, ok && actor != nil
}

// Can checks a permission for the actor carried by ctx.
func Can(ctx context.Context, resource Resource, action Action) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return false
	}
	return HasPermission(actor, resource, action)
}

// RequestMetaFromRouter captures the client details recorded on audit entries.
func RequestMetaFromRouter(c router.Context) RequestMeta {
	return RequestMeta{
		IP:        c.IP(),
		UserAgent: c.GetString(headerUserAgent, ""),
	}
}

const headerUserAgent = "User-Agent"
