// Command sphereauthd serves the AlumniSphere auth API over HTTP. It wraps
// a single sphereauth.Store behind a JSON API so web clients can log in,
// sign up, and submit mentorship or referral requests.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sphereauth "github.com/alumnisphere/sphereauth"
	"github.com/alumnisphere/sphereauth/internal/config"
	"github.com/alumnisphere/sphereauth/internal/httpserver"
	"github.com/alumnisphere/sphereauth/internal/token"
	"github.com/alumnisphere/sphereauth/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	builder := sphereauth.New().WithStorage(backend)
	if cfg.SeedDisabled {
		builder = builder.WithSeedDisabled()
	}
	if cfg.AuditLog != "" {
		f, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		builder = builder.WithAuditSink(sphereauth.NewJSONWriterSink(f))
	}

	store, err := builder.Build()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		return err
	}

	tokens := token.NewManager(cfg.TokenSecret, time.Duration(cfg.TokenTTL), cfg.TokenIssuer)

	srv := httpserver.NewServer(cfg.Listen, store, tokens, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr())
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBackend picks the durable backend from the config: Redis when an
// address is set, SQLite when a path is set, otherwise in-memory.
func openBackend(cfg config.Config, logger *slog.Logger) (storage.Backend, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("using redis backend", "addr", cfg.RedisAddr)
		return storage.NewRedis(client), func() { _ = client.Close() }, nil
	case cfg.StoragePath != "":
		db, err := storage.OpenSQLite(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite backend", "path", cfg.StoragePath)
		return db, func() { _ = db.Close() }, nil
	default:
		logger.Warn("using in-memory backend, state is lost on restart")
		return storage.NewMemory(), func() {}, nil
	}
}
