package room

import (
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/protocol"
)

// Room is the durable handle for one room id. Its actor comes and goes; the
// Room and its open sockets stay until the room is both idle and empty.
type Room struct {
	id     string
	cfg    Config
	log    *zap.Logger
	router *Router

	// mu is held while an event is enqueued so that eviction, which only
	// TryLocks it, never races a dispatcher.
	mu      sync.Mutex
	actor   *actor
	deleted bool

	sockets   *socketSet
	live      atomic.Bool
	evictions atomic.Int64
}

func newRoom(id string, cfg Config, log *zap.Logger, rt *Router) *Room {
	return &Room{
		id:      id,
		cfg:     cfg,
		log:     log.With(zap.String("room", id)),
		router:  rt,
		sockets: newSocketSet(),
	}
}

// ID returns the room id.
func (r *Room) ID() string {
	return r.id
}

// Count returns the number of open connections in the room.
func (r *Room) Count() int {
	return r.sockets.len()
}

// Active reports whether the room currently has a running actor.
func (r *Room) Active() bool {
	return r.live.Load()
}

// Evictions returns how many times the room's actor has been evicted.
func (r *Room) Evictions() int64 {
	return r.evictions.Load()
}

// Deliver hands an inbound frame from c to the room's actor.
func (r *Room) Deliver(c Conn, data []byte) {
	if !r.dispatch(event{kind: eventMessage, conn: c, data: data}) {
		r.log.Debug("dropping frame for closed room", zap.String("conn", c.ID()))
	}
}

// Leave tells the room's actor that c has closed.
func (r *Room) Leave(c Conn) {
	r.dispatch(event{kind: eventLeave, conn: c})
}

func (r *Room) join(c Conn) bool {
	return r.dispatch(event{kind: eventJoin, conn: c})
}

// dispatch enqueues ev, starting an actor if the room has none. It returns
// false once the room has been deleted or shut down.
func (r *Room) dispatch(ev event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleted {
		return false
	}

	if r.actor == nil {
		r.actor = newActor(r)
		r.live.Store(true)
		go r.actor.run()
	}

	select {
	case r.actor.inbox <- ev:
		return true
	case <-r.actor.done:
		return false
	}
}

// tryEvict is called by a from its own goroutine when it has been idle. It
// gives up if a dispatcher holds the lock or events are queued.
func (r *Room) tryEvict(a *actor) bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()

	if r.actor != a || len(a.inbox) > 0 {
		return false
	}

	r.actor = nil
	r.live.Store(false)
	r.evictions.Add(1)

	if r.sockets.len() == 0 {
		r.deleted = true
		r.router.forget(r)
	}
	return true
}

// shutdown stops the actor and closes every open socket with going away.
func (r *Room) shutdown() error {
	r.mu.Lock()
	r.deleted = true
	a := r.actor
	r.actor = nil
	r.live.Store(false)
	r.mu.Unlock()

	if a != nil {
		close(a.quit)
		<-a.done
		a.drainJoins()
	}

	var err error
	for _, c := range r.sockets.snapshot() {
		err = multierr.Append(err, c.Close(protocol.CloseGoingAway, protocol.CloseReason(protocol.CloseGoingAway)))
		r.sockets.remove(c)
	}
	return err
}
