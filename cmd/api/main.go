package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/app"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/config"
)

func main() {
	// 1. Load Config
	cfg := config.LoadConfig()

	// 2. Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// 3. Open the store and wire the services
	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	services, err := app.New(startCtx, cfg, logger)
	cancel()
	if err != nil {
		slog.Error("❌ Store connection failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	// 4. Start Worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := services.Worker.Start(workerCtx)

	// 5. Setup Fiber
	server := app.NewServer(services)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Run Server in a separate Goroutine so it doesn't block
	go func() {
		slog.Info("🚀 Server starting", "env", cfg.Env, "port", cfg.Port, "backend", cfg.StoreBackend)
		if err := server.Listen(":" + cfg.Port); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}()

	// Block here until we receive a stop signal
	<-stop
	slog.Info("🛑 Shutting down server...")

	// Stop accepting new requests and finish active ones first, so no commit
	// is cut off from the store underneath it.
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	stopWorker()
	<-workerDone

	if err := services.Close(); err != nil {
		slog.Error("Store close failed", "error", err)
	}
	slog.Info("✅ Store closed")

	slog.Info("👋 Server exited successfully")
}
