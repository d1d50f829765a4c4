package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nutriscan/nutriscan/internal/ai"
	"github.com/nutriscan/nutriscan/internal/auth"
	"github.com/nutriscan/nutriscan/internal/cache"
	"github.com/nutriscan/nutriscan/internal/config"
	"github.com/nutriscan/nutriscan/internal/db"
	httpx "github.com/nutriscan/nutriscan/internal/http"
	"github.com/nutriscan/nutriscan/internal/notifications"
	"github.com/nutriscan/nutriscan/internal/observability"
	"github.com/nutriscan/nutriscan/internal/repo/postgres"
	"github.com/nutriscan/nutriscan/internal/repo/postgres/migrations"
	"github.com/nutriscan/nutriscan/internal/security"
)

func main() {
	// .env is a dev convenience; absence is fine
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		if cfg.Env == "prod" {
			log.Error("invalid configuration", "err", err)
			os.Exit(1)
		}

		// dev fallback: random secrets, sessions and ciphertext do not
		// survive a restart
		log.Warn("incomplete configuration, generating dev secrets", "err", err)
	}

	ctx := context.Background()

	// tracing
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "nutriscan-api", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				shutdownCtx, cancel := config.WithTimeout(3 * time.Second)
				defer cancel()
				_ = shutdownTracer(shutdownCtx)
			}()
		}
	}

	// metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	prom := observability.NewProm(promReg)

	// database
	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	if err := runMigrations(ctx, cfg.DBURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// field encryption
	key, err := config.DecodeEncryptionKey(cfg.EncryptionKey)

	if err != nil {
		key = security.RandomKey()
	}

	cipher, err := security.NewFieldCipher(key, log)

	if err != nil {
		log.Error("field cipher init failed", "err", err)
		os.Exit(1)
	}

	// tokens
	jwtSecret := cfg.JWTSecret

	if jwtSecret == "" {
		jwtSecret = string(security.RandomKey())
	}

	jwtManager := auth.NewManager(jwtSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL, cfg.RefreshTTL)

	// response cache: redis when configured, in-process otherwise
	var store cache.Store

	if cfg.RedisAddr != "" {
		redisStore := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, cfg.CacheTTL, log)

		if err := redisStore.Ping(ctx); err != nil {
			log.Warn("redis unreachable, using in-process cache", "err", err)
			store = cache.NewMemory(cfg.CacheTTL, cfg.CacheMaxEntries)
		} else {
			defer redisStore.Close()
			store = redisStore
		}
	} else {
		store = cache.NewMemory(cfg.CacheTTL, cfg.CacheMaxEntries)
	}

	// external prediction service
	aiClient := ai.NewClient(ai.Config{
		BaseURL:     cfg.AIBaseURL,
		Timeout:     cfg.AITimeout,
		MaxAttempts: cfg.AIMaxAttempts,
		RetryDelay:  cfg.AIRetryDelay,
	}, log, prom)

	// account emails go to the log until a real provider is wired in
	mailer := notifications.NewProtectedMailer(
		notifications.NewLogMailer(log, frontendBaseURL(cfg)),
		notifications.ProtectedMailerConfig{},
	)

	// repositories
	usersRepo := postgres.NewUsersRepo(pool, cipher, prom)
	assessRepo := postgres.NewAssessmentsRepo(pool, cipher, prom)
	consentsRepo := postgres.NewConsentsRepo(pool, prom)

	pingDB := func() error {
		pingCtx, cancel := config.WithTimeout(time.Second)
		defer cancel()

		return pool.Ping(pingCtx)
	}

	router := httpx.NewRouter(httpx.Deps{
		Cfg:      cfg,
		Log:      log,
		JWT:      jwtManager,
		Users:    usersRepo,
		Assess:   assessRepo,
		Consents: consentsRepo,
		AI:       aiClient,
		Mailer:   mailer,
		Cache:    store,
		Prom:     prom,
		PromReg:  promReg,
		PingDB:   pingDB,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second, // analyze calls can sit on slow upstream retries
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)

		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")
	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// runMigrations opens a short-lived database/sql handle for goose; the pgx
// pool stays the runtime connection.
func runMigrations(ctx context.Context, dbURL string) error {
	sqlDB, err := sql.Open("pgx", dbURL)

	if err != nil {
		return err
	}

	defer sqlDB.Close()

	return migrations.Up(ctx, sqlDB)
}

func frontendBaseURL(cfg config.Config) string {
	if len(cfg.AllowedOrigins) > 0 {
		return cfg.AllowedOrigins[0]
	}

	return "http://localhost:5173"
}
