package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-actor-auth"
	"github.com/goliatone/go-actor-auth/config"
	"github.com/goliatone/go-actor-auth/ratelimit"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
)

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("actor-auth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
	logger := printfLogger{l: lgr.GetLogger("app")}

	if err := run(context.Background(), logger); err != nil {
		logger.Error("server exited: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger auth.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Debug {
		redacted := *cfg
		redacted.SigningKey = "[REDACTED]"
		redacted.AdminRootPassword = "[REDACTED]"
		redacted.LandlordRootPasswd = "[REDACTED]"
		logger.Debug("config\n%s", print.MaybeHighlightJSON(redacted))
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	group, err := auth.Migrate(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("migrations: %s", group)

	var limiter fiber.Storage
	if cfg.RedisAddr != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		storage := ratelimit.NewStorage(client, ratelimit.WithPrefix(cfg.LoginRateKeyBase))
		defer storage.Close()
		limiter = storage
	}

	app, err := NewApp(cfg, db, logger, limiter)
	if err != nil {
		return err
	}

	if err := app.Bootstrap(ctx); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- app.Server().Listen(cfg.AppAddr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case s := <-sig:
		logger.Info("received %s, shutting down", s)
	}

	return app.Server().ShutdownWithTimeout(cfg.ShutdownTimeout)
}
