package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/solstice-id/authcore/internal/auth"
	"github.com/solstice-id/authcore/internal/clock"
	"github.com/solstice-id/authcore/internal/config"
	"github.com/solstice-id/authcore/internal/crypto"
	"github.com/solstice-id/authcore/internal/federated"
	"github.com/solstice-id/authcore/internal/mailer"
	"github.com/solstice-id/authcore/internal/mfa"
	"github.com/solstice-id/authcore/internal/observability"
	"github.com/solstice-id/authcore/internal/orchestrator"
	"github.com/solstice-id/authcore/internal/store/postgres"
	"github.com/solstice-id/authcore/internal/token"
	"github.com/solstice-id/authcore/internal/transport"
	"github.com/solstice-id/authcore/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config_load_failed:", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if cfg.SentryDSN != "" {
		if err := observability.Init(cfg.SentryDSN, cfg.Env); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer observability.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	st := postgres.New(pool)

	if cfg.SigningKey == "" {
		log.Warn("signing_key_missing", "details", "dev_mode_unsafe")
	}
	if cfg.DataEncryptionKey == "" {
		log.Warn("data_encryption_key_missing", "details", "dev_mode_unsafe")
	}

	dek, err := crypto.ParseKeyHex(cfg.DataEncryptionKeyID, cfg.DataEncryptionKey)
	if err != nil {
		log.Error("data_encryption_key_invalid", "error", err)
		os.Exit(1)
	}
	keyRing := crypto.NewKeyRing(dek)

	tokens := token.New(token.Config{
		SigningKey:     []byte(cfg.SigningKey),
		AccessTTL:      cfg.AccessTokenTTL,
		RefreshTTL:     cfg.RefreshTokenTTL,
		ChallengeTTL:   cfg.ChallengeTokenTTL,
		DeviceTrustTTL: cfg.DeviceTrustTokenTTL,
		Clock:          clock.Real{},
	})

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	authenticator := auth.New(st, hasher, clock.Real{}, auth.Config{
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
	})

	var outboundMailer mailer.Mailer
	if cfg.SMTPHost != "" {
		smtpSender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:    cfg.SMTPHost,
			Port:    cfg.SMTPPort,
			User:    cfg.SMTPUser,
			Pass:    cfg.SMTPPassword,
			From:    cfg.SMTPFrom,
			TLSMode: "starttls",
		})
		if err != nil {
			log.Error("smtp_config_invalid", "error", err)
			os.Exit(1)
		}
		outboundMailer = mailer.NewAsyncQueue(ctx, smtpSender, 5, 10, 4, 64, log)
		log.Info("smtp_mailer_configured", "host", cfg.SMTPHost)
	} else {
		outboundMailer = &mailer.DevMailer{Logger: log}
		log.Warn("smtp_host_missing", "details", "using_dev_mailer")
	}

	mfaEngine := mfa.New(st, keyRing, outboundMailer, clock.Real{}, mfa.Config{Issuer: cfg.TOTPIssuer})

	verifiers := map[string]federated.Verifier{}
	if cfg.GoogleClientID != "" {
		verifiers["google"] = federated.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		log.Info("google_idp_configured")
	} else {
		log.Warn("google_client_id_missing", "details", "federated_login_disabled")
	}
	fed := federated.New(st, verifiers)

	orch := orchestrator.New(st, authenticator, hasher, mfaEngine, tokens, fed, outboundMailer, clock.Real{}, orchestrator.Config{
		RefreshTTL: cfg.RefreshTokenTTL,
	})

	server := transport.NewServer(orch, tokens)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		pool.Close()
		log.Info("database_pool_closed")
		log.Info("server_shutdown_complete")
	}
}
