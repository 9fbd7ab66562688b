package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AuthControllerRoutes holds the paths mounted under the kind prefix
type AuthControllerRoutes struct {
	Login           string
	Logout          string
	Me              string
	Activity        string
	Profile         string
	ChangePassword  string
	ActorManagement string
}

// AuthController serves the auth and actor management endpoints of one
// actor kind.
type AuthController struct {
	Debug        bool
	Logger       Logger
	Kind         ActorKind
	Routes       *AuthControllerRoutes
	Auther       *Auther
	Guard        *RouteAuthenticator
	Store        ActorStore
	Creator      *CreateActorHandler
	Profiles     *ProfileService
	Lifecycle    *ActorStateMachine
	LoginLimiter router.MiddlewareFunc
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Debug = debug
		return a
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		if logger != nil {
			a.Logger = logger
		}
		return a
	}
}

// WithLoginLimiter installs a middleware in front of the login route.
func WithLoginLimiter(limiter router.MiddlewareFunc) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.LoginLimiter = limiter
		return a
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		if routes != nil {
			a.Routes = routes
		}
		return a
	}
}

// ControllerDeps groups the services an AuthController delegates to.
type ControllerDeps struct {
	Auther      *Auther
	Guard       *RouteAuthenticator
	Store       ActorStore
	Provisioner *Provisioner
	Profiles    *ProfileService
	Lifecycle   *ActorStateMachine
}

func NewAuthController(deps ControllerDeps, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:           "/auth/login",
			Logout:          "/auth/logout",
			Me:              "/auth/me",
			Activity:        "/auth/activity",
			Profile:         "/auth/profile",
			ChangePassword:  "/auth/change-password",
			ActorManagement: "/actor-management",
		},
		Auther:    deps.Auther,
		Guard:     deps.Guard,
		Store:     deps.Store,
		Profiles:  deps.Profiles,
		Lifecycle: deps.Lifecycle,
	}
	if deps.Provisioner != nil {
		c.Creator = NewCreateActorHandler(deps.Provisioner)
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil || c.Guard == nil {
		panic("Missing Auther or RouteAuthenticator in auth controller...")
	}

	if c.Store == nil || c.Creator == nil || c.Profiles == nil || c.Lifecycle == nil {
		panic("Missing actor services in auth controller...")
	}

	c.Kind = c.Guard.Kind()
	if c.ErrorHandler == nil {
		c.ErrorHandler = func(ctx router.Context, err error) error {
			return WriteError(ctx, err, c.Logger)
		}
	}

	return c
}

// RegisterAuthRoutes builds an AuthController and mounts its routes on app,
// which is normally a group such as /admin or /landlord-staff.
func RegisterAuthRoutes[T any](app router.Router[T], deps ControllerDeps, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(deps, opts...)
	name := func(route string) string {
		return fmt.Sprintf("%s.%s", controller.Kind, route)
	}

	var login []router.MiddlewareFunc
	if controller.LoginLimiter != nil {
		login = append(login, controller.LoginLimiter)
	}
	app.Post(controller.Routes.Login, controller.LoginPost, login...).
		SetName(name("login.post"))

	protected := controller.Guard.Protected()
	app.Post(controller.Routes.Logout, controller.LogoutPost, protected).
		SetName(name("logout.post"))
	app.Get(controller.Routes.Me, controller.MeGet, protected).
		SetName(name("me.get"))
	app.Get(controller.Routes.Activity, controller.ActivityGet, protected).
		SetName(name("activity.get"))
	app.Put(controller.Routes.Profile, controller.ProfilePut, protected).
		SetName(name("profile.put"))
	app.Post(controller.Routes.ChangePassword, controller.ChangePasswordPost, protected).
		SetName(name("change-password.post"))

	m := controller.Routes.ActorManagement
	guard := controller.Guard.Guard
	app.Post(m+"/create", controller.CreateActorPost, guard(ResourceActorManagement, ActionCreate)...).
		SetName(name("actors.create"))
	app.Get(m, controller.ListActorsGet, guard(ResourceActorManagement, ActionRead)...).
		SetName(name("actors.list"))
	app.Get(m+"/:id", controller.ActorGet, guard(ResourceActorManagement, ActionRead)...).
		SetName(name("actors.get"))
	app.Post(m+"/:id/status", controller.ActorStatusPost, guard(ResourceActorManagement, ActionUpdate)...).
		SetName(name("actors.status"))
	app.Put(m+"/:id/permissions", controller.ActorPermissionsPut, guard(ResourceActorManagement, ActionUpdate)...).
		SetName(name("actors.permissions"))
	app.Get(m+"/:id/activity", controller.ActorActivityGet, guard(ResourceSystemLogs, ActionRead)...).
		SetName(name("actors.activity"))

	return controller
}

// ActorResponse is the public view of an actor
type ActorResponse struct {
	*Actor
	FullName string      `json:"full_name"`
	Status   ActorStatus `json:"status"`
}

func actorResponse(actor *Actor) ActorResponse {
	return ActorResponse{Actor: actor, FullName: actor.FullName(), Status: actor.Status()}
}

func (a *AuthController) LoginPost(c router.Context) error {
	payload := new(LoginPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(c, err)
	}

	res, err := a.Auther.Login(c.Context(), a.Kind, payload.Email, payload.Password, RequestMetaFromRouter(c))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		a.Logger.Debug("login %s\n%s", a.Kind, print.MaybePrettyJSON(res.Actor))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"actor":      actorResponse(res.Actor),
	})
}

func (a *AuthController) LogoutPost(c router.Context) error {
	actor, _ := ActorFromRouterContext(c)
	if err := a.Auther.Logout(c.Context(), actor, RequestMetaFromRouter(c)); err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.Status(http.StatusNoContent).SendString("")
}

func (a *AuthController) MeGet(c router.Context) error {
	actor, _ := ActorFromRouterContext(c)
	return c.JSON(http.StatusOK, map[string]any{"actor": actorResponse(actor)})
}

func (a *AuthController) ActivityGet(c router.Context) error {
	actor, _ := ActorFromRouterContext(c)
	return c.JSON(http.StatusOK, map[string]any{"activity": actor.ActivityLog.Latest(queryInt(c, "limit", MaxActivityRecords))})
}

func (a *AuthController) ProfilePut(c router.Context) error {
	actor, _ := ActorFromRouterContext(c)
	payload := new(ProfilePayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	updated, err := a.Profiles.UpdateProfile(c.Context(), actor, *payload, RequestMetaFromRouter(c))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"actor": actorResponse(updated)})
}

func (a *AuthController) ChangePasswordPost(c router.Context) error {
	actor, _ := ActorFromRouterContext(c)
	payload := new(ChangePasswordPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if err := a.Profiles.ChangePassword(c.Context(), actor, *payload, RequestMetaFromRouter(c)); err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(http.StatusNoContent).SendString("")
}

func (a *AuthController) CreateActorPost(c router.Context) error {
	creator, _ := ActorFromRouterContext(c)
	payload := new(CreateActorMessage)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		redacted := *payload
		redacted.Password = "[REDACTED]"
		a.Logger.Debug("create actor\n%s", print.MaybePrettyJSON(redacted))
	}

	created, err := a.Creator.Execute(c.Context(), creator, *payload, RequestMetaFromRouter(c))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"actor": actorResponse(created)})
}

func (a *AuthController) ListActorsGet(c router.Context) error {
	filter := ActorFilter{
		Kind:   a.Kind,
		Status: ActorStatus(c.Query("status", "")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if role := c.Query("role", ""); role != "" {
		r, ok := ParseRole(role)
		if !ok {
			return a.ErrorHandler(c, fieldFailure("role", "unknown role"))
		}
		filter.Role = r
	}

	actors, total, err := a.Store.List(c.Context(), filter)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	out := make([]ActorResponse, 0, len(actors))
	for _, actor := range actors {
		out = append(out, actorResponse(actor))
	}
	return c.JSON(http.StatusOK, map[string]any{"actors": out, "total": total})
}

func (a *AuthController) ActorGet(c router.Context) error {
	target, err := a.target(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"actor": actorResponse(target)})
}

func (a *AuthController) ActorStatusPost(c router.Context) error {
	operator, _ := ActorFromRouterContext(c)
	payload := new(StatusPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}
	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(c, err)
	}

	target, err := a.target(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	updated, err := a.Lifecycle.Transition(c.Context(), operator, target, payload.Status,
		RequestMetaFromRouter(c), WithTransitionReason(payload.Reason))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"actor": actorResponse(updated)})
}

func (a *AuthController) ActorPermissionsPut(c router.Context) error {
	operator, _ := ActorFromRouterContext(c)
	payload := new(PermissionsPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	target, err := a.target(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	updated, err := a.Lifecycle.UpdatePermissions(c.Context(), operator, target, payload.Permissions, RequestMetaFromRouter(c))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"actor": actorResponse(updated)})
}

func (a *AuthController) ActorActivityGet(c router.Context) error {
	target, err := a.target(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"activity": target.ActivityLog.Latest(queryInt(c, "limit", MaxActivityRecords))})
}

// target loads the :id actor, hiding actors of the other kind.
func (a *AuthController) target(c router.Context) (*Actor, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, fieldFailure("id", "must be a valid UUID")
	}

	actor, err := a.Store.GetByID(c.Context(), id)
	if err != nil {
		return nil, err
	}
	if actor.Kind != a.Kind {
		return nil, fmt.Errorf("actor %s has kind %s: %w", id, actor.Kind, ErrActorNotFound)
	}
	return actor, nil
}

func (a *AuthController) bind(c router.Context, out any) error {
	if err := c.Bind(out); err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fieldFailure("payload", fe.Message)
		}
		return fieldFailure("payload", "invalid request body")
	}
	return nil
}

func queryInt(c router.Context, name string, def int) int {
	raw := c.Query(name, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
