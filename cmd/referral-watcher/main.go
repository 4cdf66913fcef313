// Command referral-watcher runs the portal polling worker and its HTTP
// control surface. It wires configuration, persistence, the browser-backed
// session manager, the referral source adapters, the notification channels,
// and the polling engine, then runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/referral-watcher/internal/browser"
	"github.com/carebridge/referral-watcher/internal/config"
	httpapi "github.com/carebridge/referral-watcher/internal/http"
	"github.com/carebridge/referral-watcher/internal/notify"
	"github.com/carebridge/referral-watcher/internal/poller"
	"github.com/carebridge/referral-watcher/internal/repo"
	"github.com/carebridge/referral-watcher/internal/session"
	"github.com/carebridge/referral-watcher/internal/source"
)

func main() {
	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	selectors := session.DefaultSelectors()
	sess := session.NewManager(cfg.Portal, cfg.Browser.ScreenshotDir, selectors,
		func() (session.Agent, error) {
			return browser.Launch(cfg.Browser, log.Logger)
		}, log.Logger)
	defer sess.Close()

	dispatcher := notify.NewDispatcher(log.Logger,
		notify.NewEmailChannel(cfg.Email, log.Logger),
		notify.NewSMSChannel(cfg.SMS, log.Logger),
	)

	adapter := source.NewAdapter(cfg.Portal, log.Logger)

	opts := []poller.Option{}
	if cfg.UIExtraction {
		ui := source.NewUIAdapter(sess, selectors.ReferralRows, log.Logger)
		opts = append(opts, poller.WithUIFetcher(ui))
	}
	engine := poller.New(db, sess, adapter, dispatcher, cfg.PollInterval, log.Logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, db, engine)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("control surface listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// setupLogging configures the global zerolog logger from configuration.
func setupLogging(cfg config.Config) {
	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
