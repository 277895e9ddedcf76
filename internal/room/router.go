package room

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/limiter"
)

// DefaultRoomID is used when a client does not name a room.
const DefaultRoomID = "public"

// ErrClosed is returned by Join after Shutdown.
var ErrClosed = errors.New("room: router closed")

// Config holds the settings shared by every room of a router.
type Config struct {
	Limits      limiter.Config
	IdleTimeout time.Duration
	InboxSize   int
	Now         func() time.Time
}

// DefaultConfig returns the default limiter settings, a 30 second idle
// timeout and a 256 event inbox.
func DefaultConfig() Config {
	return Config{
		Limits:      limiter.DefaultConfig(),
		IdleTimeout: 30 * time.Second,
		InboxSize:   256,
		Now:         time.Now,
	}
}

func (c Config) sanitized() Config {
	def := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = def.InboxSize
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}

// Stats is a point-in-time view of a router.
type Stats struct {
	Rooms       int `json:"rooms"`
	ActiveRooms int `json:"activeRooms"`
	Clients     int `json:"clients"`
}

// Router maps room ids to rooms. Rooms are created on first use and removed
// once their actor is evicted with no connection left.
type Router struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
}

// NewRouter creates a router. A nil logger disables logging.
func NewRouter(cfg Config, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		cfg:   cfg.sanitized(),
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// NormalizeID maps an empty room id to DefaultRoomID. Ids are otherwise
// opaque and case-sensitive.
func NormalizeID(id string) string {
	if id == "" {
		return DefaultRoomID
	}
	return id
}

// Resolve returns the room for id, creating it if needed. Repeated calls
// with the same id return the same room for as long as it lives.
func (rt *Router) Resolve(id string) *Room {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.resolveLocked(id)
}

func (rt *Router) resolveLocked(id string) *Room {
	id = NormalizeID(id)

	r, ok := rt.rooms[id]
	if !ok {
		r = newRoom(id, rt.cfg, rt.log, rt)
		rt.rooms[id] = r
		rt.log.Debug("room created", zap.String("room", id))
	}
	return r
}

// Join adds c to the room named id and returns that room.
func (rt *Router) Join(id string, c Conn) (*Room, error) {
	for {
		rt.mu.Lock()
		if rt.closed {
			rt.mu.Unlock()
			return nil, ErrClosed
		}
		r := rt.resolveLocked(id)
		rt.mu.Unlock()

		// a room deleted before the join landed is replaced on the next pass
		if r.join(c) {
			return r, nil
		}
	}
}

// Stats counts rooms, rooms with a running actor, and open connections.
func (rt *Router) Stats() Stats {
	rt.mu.Lock()
	rooms := make([]*Room, 0, len(rt.rooms))
	for _, r := range rt.rooms {
		rooms = append(rooms, r)
	}
	rt.mu.Unlock()

	s := Stats{Rooms: len(rooms)}
	for _, r := range rooms {
		if r.Active() {
			s.ActiveRooms++
		}
		s.Clients += r.Count()
	}
	return s
}

// Shutdown stops every room and closes every connection with going away. It
// returns ctx.Err() if ctx ends first.
func (rt *Router) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	rt.closed = true
	rooms := make([]*Room, 0, len(rt.rooms))
	for id, r := range rt.rooms {
		rooms = append(rooms, r)
		delete(rt.rooms, id)
	}
	rt.mu.Unlock()

	rt.log.Info("shutting down rooms", zap.Int("rooms", len(rooms)))

	done := make(chan error, 1)
	go func() {
		var err error
		for _, r := range rooms {
			err = multierr.Append(err, r.shutdown())
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rt *Router) forget(r *Room) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.rooms[r.id] == r {
		delete(rt.rooms, r.id)
		rt.log.Debug("room removed", zap.String("room", r.id))
	}
}
