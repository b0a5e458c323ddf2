// Command mirrord runs a standalone mirror on the in-memory store.
//
// Configuration comes from the YAML file named by MIRROR_CONFIG (optional)
// and the WORKOS_* environment variables.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/mirror/extension"
	"github.com/xraph/mirror/store/memory"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("mirrord exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := extension.LoadConfig(os.Getenv(extension.EnvConfigPath))
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "DEBUG") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ext, err := extension.New(cfg,
		extension.WithStore(memory.New()),
		extension.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ext.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ext.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mirrord listening", "addr", cfg.ListenAddr, "webhook_path", ext.WebhookPath(), "action_path", ext.ActionPath(), "prefix", ext.Prefix())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		ext.Stop(shutdownCtx)
		logger.Info("mirrord stopped")
		return err
	})

	return g.Wait()
}
