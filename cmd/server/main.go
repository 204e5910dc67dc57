package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	emailPkg "alphagate/internal/adapters/email"
	web "alphagate/internal/adapters/http"
	"alphagate/internal/adapters/http/middleware"
	"alphagate/internal/adapters/http/perf"
	"alphagate/internal/adapters/lock"
	"alphagate/internal/adapters/storage"
	signupStore "alphagate/internal/adapters/storage/signup"
	"alphagate/internal/application/orchestrators"
	"alphagate/internal/config"
	"alphagate/internal/domain/dispatch"
	"alphagate/internal/domain/mailbody"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const (
	admissionLockKey = "alpha_signups:admission"
	shutdownTimeout  = 15 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("ALPHAGATE_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := perf.NewCollector(perf.DefaultRingSize)

	db, err := openDB(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()
	timedDB := storage.NewTimedDB(db, collector, cfg.Store.SlowQuery())

	var store signupStore.Store
	if cfg.Store.Driver == "postgres" {
		store = signupStore.NewPostgresStore(timedDB)
	} else {
		store = signupStore.NewSQLiteStore(timedDB)
	}
	slog.Info("store_ready", "driver", cfg.Store.Driver)

	sender, err := newSender(ctx, cfg, collector)
	if err != nil {
		return err
	}

	var admissionLock lock.Locker
	if orchestrators.AdmissionMode(cfg.Signup.Mode) == orchestrators.ModeLocked {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		admissionLock = lock.NewRedisLock(client, admissionLockKey, lock.Options{
			TTL:  cfg.Redis.LockTTL(),
			Wait: cfg.Redis.LockWait(),
		})
	}

	admin := middleware.NewBearerVerifier(cfg.Dispatch.Secret, cfg.Dispatch.SecretHash)
	if !admin.Configured() {
		slog.Warn("dispatch_secret_missing", "detail", "admin endpoints will reject every request")
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	limiter.StartJanitor(ctx)

	var csrfKey []byte
	if cfg.Server.CSRFKey != "" {
		csrfKey = []byte(cfg.Server.CSRFKey)
	}

	server := web.NewServer(store, web.Options{
		Limit:        cfg.Signup.Limit,
		Mode:         orchestrators.AdmissionMode(cfg.Signup.Mode),
		Lock:         admissionLock,
		WelcomeEmail: !cfg.Signup.DisableWelcome,

		Sender:  sender,
		From:    cfg.Email.From,
		ReplyTo: cfg.Email.ReplyTo,
		Brand: mailbody.Brand{
			Product: cfg.Brand.Product,
			Program: cfg.Brand.Program,
			SiteURL: cfg.Brand.SiteURL,
			LogoURL: cfg.Brand.LogoURL,
			Year:    time.Now().Year(),
		},

		ChunkSize:     cfg.Dispatch.ChunkSize,
		ProviderLimit: cfg.Dispatch.ProviderLimit,
		Granularity:   dispatch.Granularity(cfg.Dispatch.Granularity),
		Concurrency:   cfg.Dispatch.Concurrency,
		SendTimeout:   cfg.Dispatch.SendTimeout(),

		Admin:          admin,
		RateLimiter:    limiter,
		Collector:      collector,
		CSRFKey:        csrfKey,
		SecureCookies:  cfg.IsProduction(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustProxy:     cfg.Server.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting",
			"version", version,
			"addr", cfg.Server.Addr,
			"env", cfg.Env,
			"mode", cfg.Signup.Mode,
			"limit", cfg.Signup.Limit,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func openDB(ctx context.Context, cfg config.StoreConfig) (*sql.DB, error) {
	if cfg.Driver == "postgres" {
		return storage.OpenPostgres(ctx, cfg.DSN)
	}
	return storage.OpenSQLite(ctx, cfg.Path)
}

// newSender builds the configured provider wrapped with timing.
// Returns nil when no provider credentials are set; dispatch then reports 503.
func newSender(ctx context.Context, cfg *config.Config, collector *perf.Collector) (emailPkg.Sender, error) {
	switch cfg.Email.Provider {
	case "resend":
		if cfg.Email.ResendAPIKey == "" {
			slog.Warn("email_provider_missing", "provider", "resend", "detail", "RESEND_API_KEY is not set; email delivery is disabled")
			return nil, nil
		}
		slog.Info("email_provider_ready", "provider", "resend")
		return emailPkg.NewTimedSender(emailPkg.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From), "resend", collector), nil
	case "ses":
		ses, err := emailPkg.NewSESSender(ctx, emailPkg.SESConfig{
			Region:    cfg.Email.SES.Region,
			AccessKey: cfg.Email.SES.AccessKey,
			SecretKey: cfg.Email.SES.SecretKey,
			From:      cfg.Email.From,
			Endpoint:  cfg.Email.SES.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("configure ses: %w", err)
		}
		slog.Info("email_provider_ready", "provider", "ses", "region", cfg.Email.SES.Region)
		return emailPkg.NewTimedSender(ses, "ses", collector), nil
	case "noop":
		if cfg.IsProduction() {
			slog.Warn("email_provider_noop", "detail", "email delivery is DISABLED in production")
		}
		return emailPkg.NewTimedSender(emailPkg.NewNoopSender(), "noop", collector), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}
