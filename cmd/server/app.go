package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	auth "github.com/goliatone/go-actor-auth"
	"github.com/goliatone/go-actor-auth/activitymap"
	"github.com/goliatone/go-actor-auth/config"
	"github.com/goliatone/go-actor-auth/metrics"
	"github.com/goliatone/go-actor-auth/ratelimit"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

// App wires the services of both actor kinds behind one router server.
type App struct {
	cfg         *config.Config
	db          *bun.DB
	logger      auth.Logger
	metrics     *metrics.Metrics
	provisioner *auth.Provisioner
	limiter     fiber.Storage
	srv         router.Server[*fiber.App]
}

// kindMounts maps each actor kind to its URL prefix.
var kindMounts = map[auth.ActorKind]string{
	auth.KindPlatformAdmin: "/admin",
	auth.KindLandlordStaff: "/landlord-staff",
}

func NewApp(cfg *config.Config, db *bun.DB, logger auth.Logger, limiter fiber.Storage) (*App, error) {
	app := &App{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		metrics: metrics.New(),
		limiter: limiter,
	}
	if err := app.build(); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) build() error {
	repo := auth.NewRepositoryManager(a.db)
	repo.MustValidate()

	store := repo.Actors()
	sink := auth.MultiActivitySink{
		a.metrics,
		activitymap.Sink(a.publishActivity),
	}

	tokens, err := auth.NewTokenServiceFromConfig(a.cfg, auth.WithTokenLogger(a.logger))
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	audit := auth.NewAuditLogger(store, auth.WithAuditLogger(a.logger))

	auther := auth.NewAuthenticator(store, tokens, audit).
		WithLogger(a.logger).
		WithActivitySink(sink).
		WithSingleSession(a.cfg.GetSingleSession())

	a.provisioner = auth.NewProvisioner(repo, audit).
		WithLogger(a.logger).
		WithActivitySink(sink)

	profiles := auth.NewProfileService(store, audit).
		WithLogger(a.logger).
		WithActivitySink(sink)

	lifecycle := auth.NewActorStateMachine(store, audit,
		auth.WithStateMachineLogger(a.logger),
		auth.WithStateMachineActivitySink(sink),
	)

	a.srv = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			AppName:               "actor-auth",
			DisableStartupMessage: true,
			ErrorHandler:          a.errorHandler,
		})
	})

	// fiber level middleware must be in place before any route is mounted
	app := a.srv.WrappedRouter()
	app.Use(recover.New())
	app.Use(a.metrics.Middleware())
	app.Get("/metrics", a.metrics.Handler())

	loginLimiter := ratelimit.LoginLimiter(a.limiter, a.cfg.LoginRateMax, a.cfg.LoginRateWindow)
	for _, kind := range auth.ActorKinds {
		app.Use(kindMounts[kind]+"/auth/login", loginLimiter)
	}

	a.srv.Router().Get("/healthz", a.health).SetName("healthz")

	for _, kind := range auth.ActorKinds {
		guard := auth.NewHTTPAuthenticator(auther, a.cfg, kind).WithLogger(a.logger)
		auth.RegisterAuthRoutes(a.srv.Router().Group(kindMounts[kind]), auth.ControllerDeps{
			Auther:      auther,
			Guard:       guard,
			Store:       store,
			Provisioner: a.provisioner,
			Profiles:    profiles,
			Lifecycle:   lifecycle,
		},
			auth.WithControllerDebug(a.cfg.Debug),
			auth.WithControllerLogger(a.logger),
		)
	}

	return nil
}

// Bootstrap seeds the root actor of each kind when credentials are
// configured and no root exists yet.
func (a *App) Bootstrap(ctx context.Context) error {
	seeds := map[auth.ActorKind]auth.BootstrapRootMessage{
		auth.KindPlatformAdmin: {
			FirstName: "Root", LastName: "Admin",
			Email: a.cfg.AdminRootEmail, Password: a.cfg.AdminRootPassword,
		},
		auth.KindLandlordStaff: {
			FirstName: "Root", LastName: "Landlord",
			Email: a.cfg.LandlordRootEmail, Password: a.cfg.LandlordRootPasswd,
		},
	}

	for _, kind := range auth.ActorKinds {
		msg := seeds[kind]
		if msg.Email == "" || msg.Password == "" {
			a.logger.Warn("no root credentials configured for %s, skipping bootstrap", kind)
			continue
		}
		created, err := a.provisioner.EnsureRoot(ctx, kind, msg)
		if err != nil {
			return fmt.Errorf("bootstrap %s root: %w", kind, err)
		}
		if created {
			a.logger.Info("created root actor for %s", kind)
		}
	}
	return nil
}

func (a *App) health(c router.Context) error {
	if err := a.db.PingContext(c.Context()); err != nil {
		a.logger.Error("health check failed: %v", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

// publishActivity writes the normalized activity feed entry to the log.
func (a *App) publishActivity(_ context.Context, n activitymap.Normalized) error {
	a.logger.Debug("activity %s %s/%s by %s on %s", n.Verb, n.ObjectType, n.ObjectID, n.ActorID, n.Channel)
	return nil
}

// errorHandler renders errors that escape the route handlers, such as
// unknown routes and recovered panics, in the JSON error envelope.
func (a *App) errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	detail := auth.ErrorDetail{Code: http.StatusText(code), Message: err.Error()}
	if code >= http.StatusInternalServerError {
		a.logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
		detail = auth.ErrorDetail{Code: "INTERNAL_ERROR", Message: "internal server error"}
	}
	return c.Status(code).JSON(auth.ErrorBody{Error: detail})
}

func (a *App) Server() *fiber.App {
	return a.srv.WrappedRouter()
}
