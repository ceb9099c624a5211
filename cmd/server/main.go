package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opencraft/opencraft/internal/api"
	"github.com/opencraft/opencraft/internal/auth"
	"github.com/opencraft/opencraft/internal/compute"
	"github.com/opencraft/opencraft/internal/config"
	"github.com/opencraft/opencraft/internal/events"
	"github.com/opencraft/opencraft/internal/lock"
	"github.com/opencraft/opencraft/internal/logging"
	"github.com/opencraft/opencraft/internal/probe"
	"github.com/opencraft/opencraft/internal/reconciler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode(logger, run(cfg, logger)))
}

// exitCode logs err and flushes the logger before the process exits.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("opencraft exited", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Key Vault is read with the ambient identity (managed identity or az CLI).
	if cfg.KeyVaultURL != "" {
		cred, err := compute.NewAzureCredential(compute.AzureConfig{})
		if err != nil {
			return err
		}
		kv, err := config.NewKeyVaultClient(cfg.KeyVaultURL, cred)
		if err != nil {
			return err
		}
		n, err := cfg.LoadKeyVault(ctx, kv)
		if err != nil {
			return fmt.Errorf("failed to load secrets from Key Vault: %w", err)
		}
		logger.Info("loaded secrets from Key Vault", zap.String("vault", cfg.KeyVaultURL), zap.Int("count", n))
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	b, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s provider: %w", cfg.Provider, err)
	}
	logger.Info("compute provider configured", zap.String("provider", cfg.Provider))

	address, err := b.serverAddress(cfg)
	if err != nil {
		return err
	}
	p := probe.NewStatusAPI(cfg.StatusAPIURL, address, cfg.ProbeTimeout)

	notifier, closeNotifier, err := b.newNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s notifier: %w", cfg.Notifier, err)
	}
	defer closeNotifier()

	ropts := []reconciler.Option{reconciler.WithLogger(logger.Named("reconciler"))}
	if notifier != nil {
		ropts = append(ropts, reconciler.WithNotifier(notifier))
		logger.Info("stop notifier configured", zap.String("notifier", cfg.Notifier))
	}
	rec := reconciler.New(b.infra, p, ropts...)

	opts := &api.ServerOpts{
		APIKey: cfg.APIKey,
		Logger: logger.Named("api"),
	}
	if cfg.APIKey == "" && cfg.JWTSecret == "" {
		logger.Warn("no OPENCRAFT_API_KEY or OPENCRAFT_JWT_SECRET set, the API is unauthenticated")
	}

	if cfg.JWTSecret != "" {
		opts.JWTIssuer = auth.NewJWTIssuer(cfg.JWTSecret)
		logger.Info("power tokens enabled")
	}

	if cfg.RedisURL != "" {
		locker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer locker.Close()
		opts.Locker = locker
		logger.Info("power operations serialized through Redis", zap.Duration("ttl", cfg.LockTTL))
	}

	if cfg.EventsSubject != "" {
		pub, err := events.NewPublisher(cfg.NATSURL, cfg.EventsSubject, logger.Named("events"))
		if err != nil {
			return err
		}
		defer pub.Close()
		opts.Events = pub
		logger.Info("publishing power events", zap.String("subject", cfg.EventsSubject))
	}

	server := api.NewServer(rec, opts)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
