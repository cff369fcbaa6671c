package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inelson/kubesql/internal/config"
	"github.com/inelson/kubesql/internal/kube"
	"github.com/inelson/kubesql/internal/query"
	"github.com/inelson/kubesql/internal/refresh"
	"github.com/inelson/kubesql/internal/server"
	"github.com/inelson/kubesql/internal/shell"
	"github.com/inelson/kubesql/internal/snapshot"
	"github.com/inelson/kubesql/internal/stream"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()
	cfg.Version = version

	// The shell owns stdout, so logs move to stderr while it runs.
	var logOut io.Writer = os.Stdout
	if cfg.Shell {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting kubesql", "version", version, "commit", commit, "build_time", buildTime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cs, err := kube.NewClientset(kube.ClientOptions{
		APIServer:  cfg.APIServer,
		Kubeconfig: cfg.Kubeconfig,
	}, logger)
	if err != nil {
		logger.Error("failed to build kubernetes client", "error", err)
		os.Exit(1)
	}

	var fetcher refresh.Fetcher
	switch cfg.FetchMode {
	case config.FetchModeInformer:
		inf := kube.NewInformerFetcher(cs, cfg.InformerResync, logger)
		if err := inf.Start(ctx); err != nil {
			logger.Error("informer cache failed to start", "error", err)
			os.Exit(1)
		}
		fetcher = inf
	default:
		if cfg.FetchMode != config.FetchModeList {
			logger.Warn("unknown fetch mode, using list", "mode", cfg.FetchMode)
		}
		fetcher = kube.NewListFetcher(cs, logger)
	}

	empty, err := snapshot.Empty(ctx)
	if err != nil {
		logger.Error("failed to create empty snapshot", "error", err)
		os.Exit(1)
	}
	store := snapshot.NewStore(empty)
	hub := stream.NewHub(logger)

	coordinator := refresh.New(fetcher, store, hub, refresh.Config{
		Interval:     cfg.RefreshInterval,
		FetchTimeout: cfg.FetchTimeout,
	}, logger)

	if err := coordinator.RefreshOnce(ctx); err != nil {
		logger.Warn("initial refresh failed, serving empty snapshot", "error", err)
	}
	if err := coordinator.Start(ctx); err != nil {
		logger.Error("failed to start refresh schedule", "error", err)
		os.Exit(1)
	}

	facade := query.New(store, logger)
	srv := server.New(cfg, facade, store, coordinator, hub, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("kubesql started", "addr", cfg.HTTPAddr, "fetch_mode", cfg.FetchMode, "shell", cfg.Shell)

	if cfg.Shell {
		runShell(ctx, cfg, facade, logger)
	} else {
		<-ctx.Done()
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coordinator.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	store.Close()
	logger.Info("kubesql stopped")
}

// runShell blocks until the operator closes the shell or a signal arrives.
func runShell(ctx context.Context, cfg *config.Config, facade *query.Facade, logger *slog.Logger) {
	rl, err := shell.Open(shell.Options{
		HistoryFile: cfg.HistoryFile,
		HistorySize: cfg.HistorySize,
	})
	if err != nil {
		logger.Error("failed to open shell, serving http only", "error", err)
		<-ctx.Done()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- shell.New(facade, os.Stdout, logger).Run(ctx, rl)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shell failed", "error", err)
		}
	case <-ctx.Done():
		rl.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
