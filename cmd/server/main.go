// cmd/server/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scholara/account-service/internal/config"
	"github.com/scholara/account-service/internal/logger"
	"github.com/scholara/account-service/internal/server"
)

func main() {
	// Bootstrap logger, replaced once config is loaded
	log, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Sugar().Fatalf("failed to load config: %v", err)
	}

	if configured, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Sugar().Fatalf("failed to build logger: %v", err)
	} else {
		log = configured
	}
	defer log.Sync()

	app, err := server.NewAppServer(cfg, log)
	if err != nil {
		log.Sugar().Fatalf("failed to initialize server: %v", err)
	}

	// Start server in a goroutine
	go func() {
		if err := app.Run(); err != nil {
			log.Sugar().Fatalf("server run error: %v", err)
		}
	}()

	// Wait for interrupt (SIGINT/SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Sugar().Info("Received shutdown signal")
	app.GracefulStop()
	log.Sugar().Info("Server stopped")
}
