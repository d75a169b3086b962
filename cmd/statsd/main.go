package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/coursestats/internal/api/http"
	auth "github.com/mind-engage/coursestats/internal/auth/middleware"
	"github.com/mind-engage/coursestats/internal/config"
	"github.com/mind-engage/coursestats/internal/db"
	"github.com/mind-engage/coursestats/internal/engine"
	"github.com/mind-engage/coursestats/internal/rbac"
	"github.com/mind-engage/coursestats/internal/stats"
	"github.com/mind-engage/coursestats/internal/storage"
	"github.com/mind-engage/coursestats/internal/survey"
	syncx "github.com/mind-engage/coursestats/internal/sync"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.ParseDriver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		logger.Error("db open failed", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer dbh.Close()

	archive, err := storage.NewFSStore(cfg.ArchiveBasePath)
	if err != nil {
		logger.Error("archive store", "path", cfg.ArchiveBasePath, "error", err)
		os.Exit(1)
	}

	eng := newEngine(cfg, dbh, archive, logger)
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	r := newRouter(cfg, eng, authSvc, rbac.NewChecker(nil), dbh, archive)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver,
		"preserve_manual_schedule", cfg.PreserveManualSchedule)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newEngine(cfg config.Config, dbh *sql.DB, archive storage.Archive, logger *slog.Logger) *engine.Engine {
	events := syncx.NewEventRepo(dbh, cfg.SiteID)
	store := stats.NewSQLStore(dbh, events)

	strategy := stats.ReplaceAll
	if cfg.PreserveManualSchedule {
		strategy = stats.PreserveManualSchedule
	}
	return engine.New(engine.Deps{
		Surveys:     survey.NewSQLStore(dbh),
		Store:       store,
		Coordinator: stats.NewCoordinator(store, stats.WithStrategy(strategy), stats.WithCoordinatorLogger(logger)),
		Aggregator:  stats.NewAggregator(),
		Authorizer:  rbac.NewChecker(nil),
		Archive:     archive,
		Events:      events,
		Logger:      logger,
	})
}

func newRouter(cfg config.Config, eng *engine.Engine, authSvc *auth.AuthService, checker *rbac.Checker, dbh *sql.DB, archive storage.Archive) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if accounts := loginAccounts(cfg, checker); len(accounts) > 0 {
		r.Post("/auth/login", auth.LoginHandler(authSvc, accounts...))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(checker.Require(rbac.PermView)).
			Get("/statistics", api.ListStatisticsHandler(eng))
		pr.With(checker.Require(rbac.PermView)).
			Get("/statistics/{year}/{round}/{course}", api.GetStatisticHandler(eng))
		pr.With(checker.RequireAny(rbac.PermView, rbac.PermWrite)).
			Get("/statistics/{year}/{round}/{course}/history", api.StatisticHistoryHandler(eng))

		// Write use cases check the caller themselves before reading input.
		pr.Put("/statistics", api.SaveStatisticHandler(eng))
		pr.Post("/statistics/import", api.ImportStatisticsHandler(eng, cfg.ImportMaxBytes))
		pr.Post("/statistics/generate", api.GenerateStatisticsHandler(eng))

		pr.With(checker.Require(rbac.PermDelete)).
			Delete("/statistics/{year}/{round}/{course}", api.DeleteStatisticHandler(eng))

		// raw uploads kept by the importer
		pr.With(checker.Require(rbac.PermWrite)).
			Route("/imports", func(ir chi.Router) {
				api.MountUploads(ir, archive)
			})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// loginAccounts lists the local logins: the admin, when a hash is set, plus
// STATS_ACCOUNTS entries whose role can at least view statistics.
func loginAccounts(cfg config.Config, checker *rbac.Checker) []auth.Credentials {
	var out []auth.Credentials
	if cfg.AdminPassHash != "" {
		out = append(out, auth.Credentials{User: cfg.AdminUser, PassHash: cfg.AdminPassHash, Role: "admin"})
	}
	for _, a := range cfg.Accounts {
		if !checker.Has(a.Role, rbac.PermView) {
			slog.Warn("login account has unknown role, skipped", "user", a.User, "role", a.Role)
			continue
		}
		out = append(out, auth.Credentials{User: a.User, PassHash: a.PassHash, Role: a.Role})
	}
	return out
}
