package server

import (
	"context"
	"sync"

	"github.com/Tyrowin/fireworks/internal/room"
)

// pumpGroup tracks the client pumps serving one router. Once closed it
// refuses new pumps, so every Add happens before the final Wait.
type pumpGroup struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// add reserves n pumps. It returns false after close.
func (g *pumpGroup) add(n int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.wg.Add(n)
	return true
}

func (g *pumpGroup) done() {
	g.wg.Done()
}

// closeAndWait refuses new pumps and waits for the running ones until ctx
// ends.
func (g *pumpGroup) closeAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	pumpGroupsMu sync.Mutex
	pumpGroups   = make(map[*room.Router]*pumpGroup)
)

// pumpsFor returns the pump group of rt, creating it on first use.
func pumpsFor(rt *room.Router) *pumpGroup {
	pumpGroupsMu.Lock()
	defer pumpGroupsMu.Unlock()

	g, ok := pumpGroups[rt]
	if !ok {
		g = &pumpGroup{}
		pumpGroups[rt] = g
	}
	return g
}

// stopPumps closes the pump group of rt and waits for its pumps. The closed
// group stays registered so late handlers for rt keep being refused.
func stopPumps(ctx context.Context, rt *room.Router) error {
	return pumpsFor(rt).closeAndWait(ctx)
}
