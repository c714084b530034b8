// Command server runs the realtime chat API.
//
// @title                      Realtime Chat API
// @version                    1.0
// @description                Accounts, direct and group conversations, messages with likes, and notifications, with live delivery over WebSocket.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	_ "github.com/tbourn/go-realtime-chat/docs"
	"github.com/tbourn/go-realtime-chat/internal/cache"
	"github.com/tbourn/go-realtime-chat/internal/config"
	httpapi "github.com/tbourn/go-realtime-chat/internal/http"
	"github.com/tbourn/go-realtime-chat/internal/jobs"
	"github.com/tbourn/go-realtime-chat/internal/observability"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := sysutil.SetupLogger("info", false, "go-realtime-chat", nil)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, nil)
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	userCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("user cache unavailable, continuing without it")
		userCache = cache.Noop{}
	}

	cron, err := jobs.Start(db, cfg.Jobs, log)
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Jobs.CleanupSchedule).Msg("schedule cleanup")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	reg := realtime.NewRegistry()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Registry: reg, Cache: userCache}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Str("db", cfg.DB.Driver).
			Str("base_path", cfg.APIBasePath).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server.
	closed := reg.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	<-cron.Stop().Done()
	if err := userCache.Close(); err != nil {
		log.Warn().Err(err).Msg("close user cache")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Int("websockets_closed", closed).Msg("stopped")
}
