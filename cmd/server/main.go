package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/logging"
	"github.com/Tyrowin/fireworks/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envErr := godotenv.Load()

	config := server.NewConfigFromEnv()

	logger, err := logging.New(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	server.SetLogger(logger)
	server.SetConfig(config)
	server.StartRelay()

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(config.Port, mux)

	go func() {
		if err := server.StartServer(httpServer); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := server.ShutdownRelay(shutdownTimeout); err != nil {
		logger.Error("relay shutdown", zap.Error(err))
	}
}
