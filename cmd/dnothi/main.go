// D-Nothi: task, leave and meeting management backend
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dnothiapi "github.com/dnothi/dnothi/internal/api"
	"github.com/dnothi/dnothi/internal/api/handler"
	"github.com/dnothi/dnothi/internal/api/middleware"
	"github.com/dnothi/dnothi/internal/audit"
	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/config"
	"github.com/dnothi/dnothi/internal/db"
	"github.com/dnothi/dnothi/internal/health"
	"github.com/dnothi/dnothi/internal/mail"
	"github.com/dnothi/dnothi/internal/notify"
	"github.com/dnothi/dnothi/internal/observability"
	"github.com/dnothi/dnothi/internal/policy"
	"github.com/dnothi/dnothi/internal/seed"
	"github.com/dnothi/dnothi/internal/storage"
	"github.com/dnothi/dnothi/internal/version"
	"github.com/dnothi/dnothi/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "dnothi",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		LogFile:        cfg.Log.File,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting dnothi", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver, "env", cfg.App.Env)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River and the
	// notification broker).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed admin ----------------------------------------------------------
	if _, err := seed.EnsureAdmin(ctx, gormDB, seed.AdminOptions{
		Username: cfg.App.SeedAdminUsername,
		Email:    cfg.App.SeedAdminEmail,
		Password: cfg.App.SeedAdminPassword,
		Quota:    cfg.Upload.DefaultQuota,
	}, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// --- Email queue ---------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	sender := mail.New(mail.Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		User:     cfg.Email.User,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	}, log)
	wq, err := worker.New(pool, cfg.DB.Driver, cfg.Worker.Concurrency, sender, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- Notifications -------------------------------------------------------
	hub := notify.NewHub(log)
	var broker notify.Broker = notify.NewLocalBroker(hub)
	if pool != nil {
		broker = notify.NewPGBroker(pool, cfg.Notify.Channel, hub, log)
	}
	go func() {
		if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("notification broker stopped", "err", err)
		}
	}()

	// --- File storage --------------------------------------------------------
	var store storage.Store
	if cfg.Cloudinary.Enabled() {
		store, err = storage.NewCloudinaryStore(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, "dnothi")
	} else {
		store, err = storage.NewLocalStore(cfg.Upload.Dir)
	}
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	log.Info("file storage ready", "backend", store.Backend())

	// --- HTTP routes ---------------------------------------------------------
	deps := handler.Deps{
		DB:         gormDB,
		Gate:       policy.Default(),
		Audit:      audit.New(gormDB, log, cfg.HTTP.TrustedProxies...),
		Notify:     notify.NewService(gormDB, broker, log),
		Queue:      wq,
		Log:        log,
		Production: cfg.App.Production(),
	}
	refresh := auth.NewRefreshStore(gormDB, cfg.JWT.RefreshTTL)
	reset := auth.NewResetStore(gormDB, cfg.JWT.RefreshSecret, cfg.JWT.ResetTTL)

	handlers := &dnothiapi.Handlers{
		Health: health.New(db.NewPinger(gormDB), hub),
		Auth: handler.NewAuthHandler(deps, handler.AuthConfig{
			Secret:      cfg.JWT.Secret,
			AccessTTL:   cfg.JWT.AccessTTL,
			ResetTTL:    cfg.JWT.ResetTTL,
			FrontendURL: cfg.Frontend.URL,
		}, refresh, reset),
		Users:          handler.NewUserHandler(deps, refresh, cfg.Upload.DefaultQuota, cfg.Frontend.URL),
		Tasks:          handler.NewTaskHandler(deps),
		Leaves:         handler.NewLeaveHandler(deps),
		Meetings:       handler.NewMeetingHandler(deps),
		Collaborations: handler.NewCollaborationHandler(deps),
		Dropdowns:      handler.NewDropdownHandler(deps),
		Permissions:    handler.NewPermissionHandler(deps),
		Files:          handler.NewFileHandler(deps, store, cfg.Upload.MaxSize, cfg.Upload.DefaultQuota),
		Audit:          handler.NewAuditHandler(deps),
		Logs:           handler.NewLogHandler(log),
		Notifications:  handler.NewNotificationHandler(deps, hub, cfg.Notify.Heartbeat),
		Metrics:        promhttp.Handler(),
	}

	mux := http.NewServeMux()
	dnothiapi.RegisterRoutes(mux, handlers, middleware.Authenticate(gormDB, cfg.JWT.Secret, log))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           dnothiapi.Wrap(mux, log, cfg.App.Production(), cfg.Frontend.Origins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Event streams clear their own write deadline.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	// Shutdown waits for active handlers; open event streams only end when
	// the hub lets go of them.
	srv.RegisterOnShutdown(hub.Close)

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
