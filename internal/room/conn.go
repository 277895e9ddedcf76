// Package room implements the room relay: a registry of live connections per
// room, a single actor goroutine that serializes every event of its room, and
// a router that maps room ids to rooms.
//
// A room's actor is evicted after a period without events and recreated on
// the next one. Everything the actor needs to survive that (the open
// connections and their limiter state) lives on the Room and on the
// connections themselves, so eviction is invisible to clients.
package room

import (
	"sync"

	"github.com/Tyrowin/fireworks/internal/limiter"
)

// Conn is one client's live session as seen by a room.
//
// Send must not block: it enqueues data for delivery and fails when the
// connection cannot accept it. Close sends a close frame with the given code
// and may be called more than once.
//
// The attachment is per-connection metadata owned by the transport. The room
// stores the connection's limiter state there and reads it back on every
// message.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close(code int, reason string) error
	Attachment() limiter.State
	SetAttachment(limiter.State)
}

// socketSet holds the connections accepted into a room. It outlives the
// room's actor.
type socketSet struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func newSocketSet() *socketSet {
	return &socketSet{conns: make(map[string]Conn)}
}

func (s *socketSet) add(c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.ID()] = c
}

func (s *socketSet) remove(c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.ID())
}

func (s *socketSet) snapshot() []Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

func (s *socketSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
