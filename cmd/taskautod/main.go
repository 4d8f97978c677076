package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskauto/internal/api"
	"taskauto/internal/config"
	"taskauto/internal/core"
	"taskauto/internal/logging"
	taskautomcp "taskauto/internal/mcp"
	"taskauto/internal/notify"
	"taskauto/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	driver := core.NewDriver(storeInst, logger, &notify.NoOpNotifier{}, location)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if err := driver.Start(ctx, cfg.TickCron); err != nil {
		logger.Error("start driver", "err", err)
		os.Exit(1)
	}

	var httpServer *api.Server
	serverErr := make(chan error, 1)
	if cfg.Mode == "http" || cfg.Mode == "both" {
		httpServer, err = api.NewServer(cfg.Addr, cfg.AuthToken, storeInst, driver, logger, location)
		if err != nil {
			logger.Error("create server", "err", err)
			os.Exit(1)
		}
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	mcpErr := make(chan error, 1)
	if cfg.Mode == "mcp" || cfg.Mode == "both" {
		mcpServer := taskautomcp.NewMCPServer(storeInst, driver, logger, location)
		go func() {
			if err := mcpServer.Run(); err != nil {
				mcpErr <- err
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}

	stopCtx := driver.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("driver stop timed out")
	}

	logger.Info("shutdown complete")
}
