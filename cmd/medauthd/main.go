// Command medauthd serves the authentication API over HTTP.
//
// Configuration comes from the environment (a .env file is honored when
// present): MEDAUTHD_ADDR, DATABASE_URL, REDIS_ADDR, REDIS_PASSWORD,
// JWT_SECRET, SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD. Without
// SMTP settings codes are written to the log, which is only acceptable in
// development.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/medauth/medauth"
	"github.com/medauth/medauth/mailer"
	"github.com/medauth/medauth/pgstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("medauthd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	migrator, err := pgstore.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()

	engine, err := medauth.New().
		WithRedis(rdb).
		WithAccountStore(pgstore.NewStore(pool)).
		WithMailer(buildMailer(logger)).
		WithJWTSecret([]byte(jwtSecret)).
		WithAuditSink(medauth.NewJSONWriterSink(os.Stdout)).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              envOr("MEDAUTHD_ADDR", ":8080"),
		Handler:           newRouter(engine, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("medauthd listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildMailer(logger *slog.Logger) medauth.Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		logger.Warn("SMTP_HOST not set, writing codes to the log")
		return mailer.NewLog(logger)
	}

	m, err := mailer.NewSMTP(mailer.SMTPConfig{
		Host:     host,
		Port:     envOr("SMTP_PORT", "465"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	})
	if err != nil {
		logger.Warn("smtp config invalid, writing codes to the log", slog.String("error", err.Error()))
		return mailer.NewLog(logger)
	}
	return m
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
