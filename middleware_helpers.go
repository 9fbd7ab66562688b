package auth

import (
	"context"

	"github.com/goliatone/go-actor-auth/middleware/jwtware"
	"github.com/goliatone/go-router"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores validated *JWTClaims in the request context.
// Claims of any other type leave the context untouched.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	jwtClaims, ok := claims.(*JWTClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, jwtClaims)
}

// ActorLoader returns a listener that re-reads the actor named by the token
// and rejects it unless it is of kind and may still act.
func ActorLoader(auther *Auther, kind ActorKind) ValidationListener {
	return func(c router.Context, raw jwtware.AuthClaims) error {
		claims, ok := raw.(*JWTClaims)
		if !ok {
			return ErrTokenInvalid
		}
		actor, _, err := auther.ActorFromClaims(c.Context(), kind, claims)
		if err != nil {
			return err
		}
		c.Locals(LocalsActorKey, actor)
		c.SetContext(WithActorContext(c.Context(), actor))
		return nil
	}
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
