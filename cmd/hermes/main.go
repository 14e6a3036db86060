// Command hermes runs the LNURL-pay address server: it issues Lightning
// invoices against a Fedimint federation, watches them to settlement, mints
// e-cash notes for the paid amount, and delivers the notes to the recipient
// over Nostr (with an optional XMPP fallback).
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

	"github.com/benthecarman/hermes/internal/config"
	"github.com/benthecarman/hermes/internal/fedimint"
	httpapi "github.com/benthecarman/hermes/internal/http"
	"github.com/benthecarman/hermes/internal/nostr"
	"github.com/benthecarman/hermes/internal/observability"
	"github.com/benthecarman/hermes/internal/repo"
	"github.com/benthecarman/hermes/internal/services"
	"github.com/benthecarman/hermes/internal/sysutil"
	"github.com/benthecarman/hermes/internal/xmpp"
)

var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting hermes")

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	fm := fedimint.NewClient(cfg.Fedimint.BaseURL, cfg.Fedimint.Password)

	var transports []services.Messenger
	nm, err := nostr.NewMessenger(cfg.Nostr.SecretKey, cfg.Nostr.Relays)
	if err != nil {
		log.Fatal().Err(err).Msg("nostr messenger setup failed")
	}
	transports = append(transports, nm)

	var xm *xmpp.Messenger
	if cfg.XMPP.Enabled {
		xm = xmpp.NewMessenger(cfg.XMPP.Username, cfg.XMPP.Password, cfg.XMPP.Server, cfg.XMPP.ChatServer)
		transports = append(transports, xm)
	}

	r := gin.New()
	app := httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:         db,
		Issuer:     fm,
		Minter:     fm,
		Transports: transports,
	}, cfg)

	// Pick up state left behind by a previous run before serving traffic:
	// pending invoices get their watchers back, and minted-but-undelivered
	// notes get another send attempt.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if n, err := app.Watchers.Resume(startupCtx); err != nil {
		log.Error().Err(err).Msg("watcher resume failed")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("resumed pending invoice watchers")
	}
	if n, err := app.Notifier.RedeliverPending(startupCtx); err != nil {
		log.Error().Err(err).Msg("redelivery sweep failed")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("redelivered stranded notes")
	}
	cancelStartup()

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	// Watchers hold in-flight settlements; give them the remainder of the
	// grace period. Pending rows are re-derived via Resume on next start.
	if err := app.Watchers.Close(ctx); err != nil {
		log.Error().Err(err).Msg("watcher drain incomplete")
	}

	if xm != nil {
		if err := xm.Close(); err != nil {
			log.Error().Err(err).Msg("xmpp close failed")
		}
	}

	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}

	log.Info().Msg("stopped")
}
