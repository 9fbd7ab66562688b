package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-actor-auth/middleware/jwtware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator builds router middleware guarding the routes of one actor kind.
type RouteAuthenticator struct {
	auth         *Auther
	cfg          Config
	kind         ActorKind
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther *Auther, cfg Config, kind ActorKind) *RouteAuthenticator {
	a := &RouteAuthenticator{
		auth:   auther,
		cfg:    cfg,
		kind:   kind,
		Logger: defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// Kind returns the actor kind this authenticator accepts
func (a *RouteAuthenticator) Kind() ActorKind {
	return a.kind
}

// Protected validates the bearer token, re-reads the actor and stores it in
// the router locals under LocalsActorKey. Extra listeners run after the actor
// is loaded.
func (a *RouteAuthenticator) Protected(extra ...ValidationListener) router.MiddlewareFunc {
	cfg := jwtware.Config{
		ErrorHandler: func(c router.Context, err error) error {
			return a.ErrorHandler(c, err)
		},
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			claims, err := a.auth.TokenService().Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ContextEnricher: ContextEnricherAdapter,
		AuthScheme:      a.cfg.GetAuthScheme(),
		ContextKey:      a.cfg.GetContextKey(),
		TokenLookup:     a.cfg.GetTokenLookup(),
	}
	RegisterValidationListeners(&cfg, ActorLoader(a.auth, a.kind))
	RegisterValidationListeners(&cfg, extra...)
	return jwtware.New(cfg)
}

// RequirePermission must run after Protected.
func (a *RouteAuthenticator) RequirePermission(resource Resource, action Action) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			actor, ok := ActorFromRouterContext(c)
			if !ok {
				return a.ErrorHandler(c, ErrTokenInvalid)
			}
			if err := a.auth.Authorize(c.Context(), actor, resource, action); err != nil {
				return a.ErrorHandler(c, err)
			}
			return next(c)
		}
	}
}

// Guard is Protected followed by RequirePermission, in route order.
func (a *RouteAuthenticator) Guard(resource Resource, action Action) []router.MiddlewareFunc {
	return []router.MiddlewareFunc{a.Protected(), a.RequirePermission(resource, action)}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		err = ErrTokenInvalid
	}
	return WriteError(c, err, a.Logger)
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError renders err as a JSON error. Anything that is not a known
// domain error is logged and reported as a generic internal error.
func WriteError(c router.Context, err error, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	var vf *ValidationFailure
	if errors.As(err, &vf) {
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    TextCodeValidation,
			Message: ErrValidation.Message,
			Fields:  vf.Fields,
		}})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < http.StatusInternalServerError {
		return c.JSON(fe.Code, ErrorBody{Error: ErrorDetail{
			Code:    http.StatusText(fe.Code),
			Message: fe.Message,
		}})
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Code > 0 && richErr.Code < http.StatusInternalServerError && richErr.TextCode != "" {
		return c.JSON(richErr.Code, ErrorBody{Error: ErrorDetail{
			Code:    richErr.TextCode,
			Message: richErr.Message,
		}})
	}

	logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
	return c.JSON(http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	}})
}
