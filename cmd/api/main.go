package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/recychain/recychain/internal/config"
	"github.com/recychain/recychain/internal/db"
	"github.com/recychain/recychain/internal/scheduler"
)

func main() {
	cfg := config.Load()

	setupLogger(cfg.LogFormat)

	if cfg.Env == "prod" && cfg.JWTSecret == "supersecretkey" {
		slog.Error("JWT_SECRET must be set to a non-default value in prod")
		os.Exit(1)
	}

	var database *sql.DB
	if cfg.DBBackend == "memory" {
		slog.Warn("memory backend selected, nothing will survive a restart")
	} else {
		var err error
		database, err = db.Connect(
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
			cfg.DBUser,
			cfg.DBPass,
			cfg.DBMaxOpenConns,
			cfg.DBMaxIdleConns,
		)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

		if err := db.Migrate(databaseURL(cfg)); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	a := newApp(database, cfg)
	if a.publisher != nil {
		defer a.publisher.Close()
	}

	// Bootstrap the first admin account so a fresh deployment is usable.
	if cfg.DBBackend != "memory" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminWallet); err != nil {
			slog.Error("admin bootstrap failed", "error", err)
			cancel()
			os.Exit(1)
		}
		cancel()
	}

	cron := scheduler.Start(a.store, a.transport, scheduler.Config{
		IdempotencyWindow: time.Duration(cfg.IdempotencyWindowMinutes) * time.Minute,
	})
	defer cron.Stop()

	handler := a.router()

	addr := ":" + cfg.Port
	slog.Info("starting server", "addr", addr, "env", cfg.Env, "backend", cfg.DBBackend)

	var err error
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		err = http.ListenAndServeTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}
	if err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// setupLogger installs the default slog handler. Text for humans, JSON for
// log pipelines.
func setupLogger(format string) {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}

// databaseURL builds the migration DSN from the same settings db.Connect uses.
func databaseURL(cfg config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(cfg.DBUser),
		url.QueryEscape(cfg.DBPass),
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)
}
