// Command server runs the storefront composition API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/shoplight/storefront/internal/app"
	"github.com/shoplight/storefront/internal/app/httpapi"
	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage/postgres"
	"github.com/shoplight/storefront/internal/config"
	"github.com/shoplight/storefront/internal/middleware"
	"github.com/shoplight/storefront/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.NewDefault("server")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/storefront.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	stores := app.Stores{}
	if cfg.Database.URL != "" {
		if err := runMigrations(cfg.Database.MigrationsDir, cfg.Database.URL); err != nil {
			log.WithError(err).Error("run migrations")
			os.Exit(1)
		}
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.WithError(err).Error("ping database")
			os.Exit(1)
		}
		store := postgres.New(db)
		stores = app.Stores{Storefronts: store, Templates: store, Sections: store}
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	opts := app.Options{
		Manifests:  themes.NewDirSource(cfg.Themes.Dir),
		GlobalsTTL: cfg.Cache.GlobalsTTL.Std(),
	}
	if cfg.Redis.Addr != "" {
		opts.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer opts.Redis.Close()
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	var sink httpapi.AuditSink
	if cfg.Audit.File != "" {
		sink = httpapi.NewFileAuditSink(cfg.Audit.File)
	}
	api := httpapi.NewHandlerWithAudit(application, sink)

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(apiChain(cfg, log, api))

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("server stopped")
}

// apiChain wraps the API handler with the standard middleware stack.
func apiChain(cfg *config.Config, log *logger.Logger, api http.Handler) http.Handler {
	handler := api
	if cfg.Auth.JWTSecret != "" {
		auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), log, cfg.Auth.SkipPaths)
		handler = auth.Handler(handler)
	} else {
		log.Warn("JWT_SECRET not set; API authentication disabled")
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	handler = limiter.Handler(handler)
	handler = middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins).Handler(handler)
	handler = middleware.NewRequestIDMiddleware(log).Handler(handler)
	return metrics.InstrumentHandler(handler)
}

// runMigrations applies pending schema migrations before serving.
func runMigrations(dir, databaseURL string) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
