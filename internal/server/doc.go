// Package server implements the HTTP and WebSocket transport of the fireworks
// relay.
//
// The implementation is organized into specialized files for configuration,
// origin policy, clients, routing, and HTTP handlers. Room membership,
// rate limiting and fan-out live in the room package; this package only moves
// frames between sockets and rooms.
package server
