package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/limiter"
	"github.com/Tyrowin/fireworks/internal/protocol"
)

type eventKind int

const (
	eventJoin eventKind = iota
	eventMessage
	eventLeave
)

type event struct {
	kind eventKind
	conn Conn
	data []byte
}

// actor is the single goroutine that owns a room's registry. Everything it
// touches besides the registry is either immutable or carried on the
// connections.
type actor struct {
	room     *Room
	registry *Registry
	limits   limiter.Config
	now      func() time.Time
	log      *zap.Logger

	inbox chan event
	quit  chan struct{}
	done  chan struct{}
}

// newActor builds an actor whose registry is rebuilt from the room's open
// sockets. No membership change is announced for them.
func newActor(r *Room) *actor {
	a := &actor{
		room:     r,
		registry: NewRegistry(),
		limits:   r.cfg.Limits,
		now:      r.cfg.Now,
		log:      r.log,
		inbox:    make(chan event, r.cfg.InboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, c := range r.sockets.snapshot() {
		a.registry.Add(c)
	}
	a.registry.OnChange(a.announce)
	return a
}

func (a *actor) run() {
	defer close(a.done)

	idle := time.NewTimer(a.room.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-a.quit:
			return

		case ev := <-a.inbox:
			a.handle(ev)
			idle.Reset(a.room.cfg.IdleTimeout)

		case <-idle.C:
			if a.room.tryEvict(a) {
				a.log.Debug("room actor evicted", zap.Int("clients", a.registry.Count()))
				return
			}
			idle.Reset(a.room.cfg.IdleTimeout)
		}
	}
}

// drainJoins records connections whose join was still queued when the actor
// stopped, so shutdown can close them too.
func (a *actor) drainJoins() {
	for {
		select {
		case ev := <-a.inbox:
			if ev.kind == eventJoin {
				a.room.sockets.add(ev.conn)
			}
		default:
			return
		}
	}
}

func (a *actor) handle(ev event) {
	switch ev.kind {
	case eventJoin:
		a.accept(ev.conn)
	case eventMessage:
		a.receive(ev.conn, ev.data)
	case eventLeave:
		a.leave(ev.conn)
	}
}

func (a *actor) accept(c Conn) {
	a.room.sockets.add(c)
	if a.registry.Add(c) {
		a.log.Info("client joined", zap.String("conn", c.ID()), zap.Int("clients", a.registry.Count()))
	}
}

func (a *actor) leave(c Conn) {
	a.room.sockets.remove(c)
	c.SetAttachment(limiter.State{})
	if a.registry.Remove(c) {
		a.log.Info("client left", zap.String("conn", c.ID()), zap.Int("clients", a.registry.Count()))
	}
}

// receive runs one inbound frame through the limiters, then the validator,
// then the broadcast.
func (a *actor) receive(c Conn, raw []byte) {
	if !a.registry.Has(c) {
		return
	}

	env, decodeErr := protocol.Decode(raw)
	if decodeErr == nil && env.Kind() == protocol.TypePing {
		a.send(c, protocol.Pong())
		return
	}

	now := a.now()
	state, ok := a.limits.Admit(c.Attachment(), now)
	if ok && decodeErr == nil && env.Kind() == protocol.TypeLaunch {
		state, ok = a.limits.AdmitLaunch(state, now)
	}
	c.SetAttachment(state)

	if !ok {
		a.log.Warn("rate limit exceeded", zap.String("conn", c.ID()))
		a.closeWith(c, protocol.CloseRateLimited)
		return
	}

	if decodeErr != nil {
		a.log.Debug("malformed frame", zap.String("conn", c.ID()), zap.Error(decodeErr))
		a.closeWith(c, protocol.CloseMalformed)
		return
	}

	switch env.Kind() {
	case protocol.TypeLaunch:
		if _, err := protocol.ValidateLaunch(raw); err != nil {
			a.log.Debug("invalid launch", zap.String("conn", c.ID()), zap.Error(err))
			a.closeWith(c, protocol.CloseInvalidPayload)
			return
		}
		a.broadcast(raw, c)
	default:
		a.log.Debug("ignoring frame", zap.String("conn", c.ID()), zap.String("type", env.Kind()))
	}
}

// announce is the registry's change hook.
func (a *actor) announce(ch Change) {
	if !ch.Joined {
		a.broadcast(protocol.ClientLeft(ch.Count), nil)
		return
	}

	if !a.send(ch.Conn, protocol.Connected(ch.Count)) {
		return
	}
	a.broadcast(protocol.ClientJoined(ch.Count), ch.Conn)
}

// broadcast delivers payload to every member except exclude. Members that
// cannot take the payload are closed and removed once the fan-out is done.
func (a *actor) broadcast(payload []byte, exclude Conn) {
	var failed []Conn
	sent := 0

	for _, c := range a.registry.All() {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		if err := c.Send(payload); err != nil {
			a.log.Debug("delivery failed", zap.String("conn", c.ID()), zap.Error(err))
			failed = append(failed, c)
			continue
		}
		sent++
	}

	for _, c := range failed {
		a.closeWith(c, protocol.CloseSlowConsumer)
	}

	a.log.Debug("broadcast", zap.Int("sent", sent), zap.Int("failed", len(failed)))
}

func (a *actor) send(c Conn, payload []byte) bool {
	if err := c.Send(payload); err != nil {
		a.log.Debug("delivery failed", zap.String("conn", c.ID()), zap.Error(err))
		a.closeWith(c, protocol.CloseSlowConsumer)
		return false
	}
	return true
}

func (a *actor) closeWith(c Conn, code int) {
	if err := c.Close(code, protocol.CloseReason(code)); err != nil {
		a.log.Debug("close failed", zap.String("conn", c.ID()), zap.Int("code", code), zap.Error(err))
	}
	a.leave(c)
}
