package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheYuriG/feedsync/internal/config"
	"github.com/TheYuriG/feedsync/internal/devserver"
	"github.com/TheYuriG/feedsync/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "feedd.toml", "path to the TOML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()
	logger.Info("opened database", "path", cfg.DatabasePath)

	server := devserver.NewServer(cfg, repo, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server exited with error", "error", err)
		}
	}()

	logger.Info("reference backend started", "port", cfg.Port)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down server", "error", err)
	}

	return nil
}
