// Package server constructs and starts the relay's HTTP service and owns the
// process-wide room router.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/room"
)

var (
	relayMu sync.Mutex
	relay   *room.Router
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// WriteTimeout is left at zero because upgraded connections inherit it.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartRelay creates the process-wide router from the active configuration.
// Calling it again replaces the router.
func StartRelay() *room.Router {
	cfg := currentConfig()
	rt := room.NewRouter(cfg.RoomConfig(), logger().Named("room"))

	relayMu.Lock()
	relay = rt
	relayMu.Unlock()

	logger().Info("relay started",
		zap.Int("rateLimitCapacity", cfg.RateLimit.Capacity),
		zap.Int("launchBurst", cfg.RateLimit.LaunchBurst),
		zap.Duration("roomIdleTimeout", cfg.RoomIdleTimeout))
	return rt
}

// GetRouter returns the router created by StartRelay, starting one if needed.
func GetRouter() *room.Router {
	relayMu.Lock()
	rt := relay
	relayMu.Unlock()

	if rt == nil {
		return StartRelay()
	}
	return rt
}

// StartServer starts the HTTP server and begins listening for connections.
func StartServer(server *http.Server) error {
	logger().Info("server listening", zap.String("addr", server.Addr))
	return server.ListenAndServe()
}

// ShutdownServer stops accepting requests and waits for in-flight HTTP
// requests until timeout. Upgraded connections are not tracked by
// http.Server; ShutdownRelay closes them.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	logger().Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}

	logger().Info("HTTP server shutdown completed")
	return nil
}

// ShutdownRelay closes every room with going away and waits for the client
// pumps to exit, bounded by timeout.
func ShutdownRelay(timeout time.Duration) error {
	relayMu.Lock()
	rt := relay
	relay = nil
	relayMu.Unlock()

	if rt == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rt.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "relay shutdown")
	}

	if err := stopPumps(ctx, rt); err != nil {
		return errors.Wrap(err, "waiting for client connections")
	}

	logger().Info("relay shutdown completed")
	return nil
}
