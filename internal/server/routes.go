// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/fireworks/internal/room"
)

// SetupRoutes returns a ServeMux bound to the router started by StartRelay.
func SetupRoutes() *http.ServeMux {
	return NewMux(GetRouter())
}

// NewMux configures the application routes against rt.
func NewMux(rt *room.Router) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", RootHandler(rt))
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/stats", StatsHandler(rt))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
