package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/lmsnotify/internal/adapter/driven/moodle"
	"github.com/ericfisherdev/lmsnotify/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/lmsnotify/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/lmsnotify/internal/adapter/driving/http"
	"github.com/ericfisherdev/lmsnotify/internal/application"
	"github.com/ericfisherdev/lmsnotify/internal/config"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
	"github.com/ericfisherdev/lmsnotify/internal/secret"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration. A missing .env file is normal in containers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"portal_url", cfg.PortalURL,
		"poll_interval", cfg.PollInterval,
		"max_concurrent_checks", cfg.MaxConcurrentChecks,
		"attendance_rules", cfg.AttendanceRules,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Resolve the credential encryption key.
	key := cfg.SecretKey
	if !cfg.HasSecretKey() {
		var created bool
		key, created, err = secret.LoadOrCreateKeyFile(cfg.SecretKeyFile)
		if err != nil {
			return err
		}
		if created {
			slog.Warn("generated new encryption key, back it up or stored credentials become unreadable",
				"path", cfg.SecretKeyFile)
		}
	}
	box, err := secret.NewBox(key)
	if err != nil {
		return err
	}

	// 4. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 5. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "version", version)

	// 6. Wire driven adapters.
	vault := sqliteadapter.NewCredentialRepo(db, box)
	seenStore := sqliteadapter.NewSeenRepo(db)
	prefStore := sqliteadapter.NewPreferenceRepo(db)

	limiter := rate.NewLimiter(rate.Limit(cfg.PortalRate), 1)
	portal, err := moodle.NewClient(cfg.PortalURL, cfg.HTTPTimeout, limiter)
	if err != nil {
		return err
	}
	parser := moodle.NewCalendarParser()

	var notifier driven.Notifier
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(cfg.WebhookURL, cfg.HTTPTimeout)
		if err != nil {
			return err
		}
		notifier = webhook
		slog.Info("webhook notifier enabled")
	} else {
		notifier = notify.NewLogNotifier(slog.Default())
		slog.Info("no webhook configured, notifications are logged only")
	}

	// 7. Create monitor service and start the scheduler.
	monitorSvc := application.NewMonitorService(
		vault,
		seenStore,
		prefStore,
		portal,
		parser,
		notifier,
		application.NewAttendanceRules(cfg.AttendanceRules),
		cfg.CheckTimeout,
	)
	scheduler := application.NewScheduler(
		monitorSvc,
		monitorSvc,
		cfg.PollInterval,
		cfg.InitialDelay,
		cfg.MaxConcurrentChecks,
	)
	go scheduler.Start(ctx)

	// 8. Create HTTP handler.
	apiHandler := httphandler.NewHandler(monitorSvc, scheduler, cfg.AdminToken, slog.Default())
	if cfg.AdminToken == "" {
		slog.Info("no admin token configured, admin endpoints disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Manual sweeps and checks wait on the portal.
		WriteTimeout: cfg.CheckTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("lmsnotify started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"initial_delay", cfg.InitialDelay,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
