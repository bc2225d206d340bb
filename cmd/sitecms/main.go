// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/auth"
	"github.com/olegiv/sitecms/internal/backup"
	"github.com/olegiv/sitecms/internal/cache"
	"github.com/olegiv/sitecms/internal/captcha"
	"github.com/olegiv/sitecms/internal/config"
	"github.com/olegiv/sitecms/internal/csrf"
	"github.com/olegiv/sitecms/internal/geoip"
	"github.com/olegiv/sitecms/internal/handler"
	"github.com/olegiv/sitecms/internal/handler/api"
	"github.com/olegiv/sitecms/internal/imaging"
	"github.com/olegiv/sitecms/internal/logging"
	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/resource"
	"github.com/olegiv/sitecms/internal/scheduler"
	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/upload"
	"github.com/olegiv/sitecms/internal/version"
	"github.com/olegiv/sitecms/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	uploadsMaxAge   = 7 * 24 * 60 * 60
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "sitecms - content API and admin backend\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SESSION_SECRET     Session signing key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DB_PATH            SQLite database path (default: data/app.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SERVER_PORT        Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  APP_ENV            Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BACKUP_SCHEDULE    Cron expression for automatic backups (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  REDIS_URL          Redis URL for the shared cache (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.New(appVersion, appGitCommit, appBuildTime)
	if *showVersion {
		_, _ = fmt.Println(info.String())
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(textHandler))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath, "driver", cfg.DBDriver)
	db, err := store.NewDB(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()

	if err := store.Migrate(db.DB); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// WARN and above are also persisted to the events table.
	queries := store.New(db)
	logger := slog.New(logging.NewEventLogHandler(textHandler, queries))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Seed(ctx, db, cfg.AdminDefaultPassword, logger); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	appCache := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CacheTTL,
	}, logger)
	defer func() { _ = appCache.Close() }()

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn("geoip database unavailable", "path", cfg.GeoIPDBPath, "error", err)
	}
	defer func() { _ = geo.Close() }()

	limiter := ratelimit.New()
	backups := backup.NewManager(cfg.DBPath, cfg.BackupDir, store.NewLiveDB(db), logger)

	sched, err := newScheduler(ctx, cfg, limiter, backups, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if !cfg.CaptchaEnabled() {
		logger.Info("captcha not configured, throttled logins stay blocked until the window resets")
	}

	apiHandler := api.NewHandler(api.Deps{
		DB:            db,
		Resources:     resource.Builtin(),
		Sessions:      auth.NewManager(cfg.SessionSecret, queries, logger),
		CSRF:          csrf.NewService(cfg.SessionSecret),
		Limiter:       limiter,
		Captcha:       captcha.NewVerifier(cfg.CaptchaSecret, cfg.CaptchaVerifyURL, logger),
		Backups:       backups,
		Uploads:       upload.NewStore(cfg.UploadsDir, imaging.NewProcessor(400, 400, 85), logger),
		ContactInfo:   cache.NewContactInfo(appCache, queries, cfg.CacheTTL),
		Cache:         appCache,
		GeoIP:         geo,
		Logger:        logger,
		AuthFlood:     middleware.NewGlobalRateLimiter(2, 10),
		IsDev:         cfg.IsDevelopment(),
		SecureCookies: cfg.IsProduction(),
	})

	pages, err := handler.NewPagesHandler(web.Templates, logger)
	if err != nil {
		return err
	}

	r := newRouter(cfg, db, apiHandler, pages, info, logger)

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", info.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newScheduler registers the counter sweep and, when configured, automatic backups.
func newScheduler(ctx context.Context, cfg *config.Config, limiter *ratelimit.Limiter, backups *backup.Manager, logger *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(logger)

	err := sched.AddJob("ratelimit-sweep", ratelimit.SweepSchedule, func() error {
		if n := limiter.Sweep(); n > 0 {
			logger.Debug("expired rate limit counters removed", "count", n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling rate limit sweep: %w", err)
	}

	if cfg.BackupSchedule == "" {
		return sched, nil
	}

	job := backup.Job{Manager: backups, Keep: cfg.BackupKeep}
	if cfg.OffsiteEnabled() {
		uploader, err := backup.NewS3Uploader(backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring offsite backups: %w", err)
		}
		job.Uploader = uploader
	}

	if err := sched.AddJob("backup", cfg.BackupSchedule, func() error {
		return job.Run(ctx)
	}); err != nil {
		return nil, fmt.Errorf("scheduling backups: %w", err)
	}
	logger.Info("automatic backups enabled",
		"schedule", cfg.BackupSchedule, "keep", cfg.BackupKeep, "offsite", job.Uploader != nil)
	return sched, nil
}

func newRouter(cfg *config.Config, db *sqlx.DB, apiHandler *api.Handler, pages *handler.PagesHandler, info version.Info, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.GetHead)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", csrf.HeaderName},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))
	r.Use(middleware.RequestPath)
	r.Use(middleware.CSRF(middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.TrustedOrigins, cfg.IsDevelopment())))
	r.Use(middleware.LoadSession(apiHandler.Sessions))

	health := handler.NewHealthHandler(db, cfg.UploadsDir, info.Version)
	r.Get("/health", health.Health)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	blog := handler.NewBlogHandler(db, logger)
	r.Get("/blog/{slug}", blog.Post)

	r.Get("/login", pages.Login)
	r.With(middleware.RequireSessionPage).Get("/admin", pages.Admin)

	uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir)))
	r.With(middleware.StaticFiles(uploadsMaxAge)).Get("/uploads/*", uploads.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Group(apiHandler.Routes)
	})

	return r
}
