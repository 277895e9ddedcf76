package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/fireworks/internal/limiter"
)

type mockConn struct {
	id string

	mu         sync.Mutex
	received   [][]byte
	sendErr    error
	closed     bool
	closeCode  int
	closeCount int
	state      limiter.State
}

func newMockConn(id string) *mockConn {
	return &mockConn{id: id}
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, append([]byte(nil), data...))
	return nil
}

func (m *mockConn) Close(code int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closeCode = code
	}
	m.closed = true
	m.closeCount++
	return nil
}

func (m *mockConn) Attachment() limiter.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockConn) SetAttachment(s limiter.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *mockConn) failSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *mockConn) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

func (m *mockConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, f := range m.frames() {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(f, &msg))
		out = append(out, msg)
	}
	return out
}

func (m *mockConn) closedWith() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.closeCode
}

func waitFrames(t *testing.T, c *mockConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.frames()) >= n
	}, time.Second, 2*time.Millisecond, "%s expected %d frames", c.id, n)
}

func waitClosed(t *testing.T, c *mockConn) int {
	t.Helper()
	require.Eventually(t, func() bool {
		closed, _ := c.closedWith()
		return closed
	}, time.Second, 2*time.Millisecond, "%s expected to be closed", c.id)
	_, code := c.closedWith()
	return code
}

func TestRegistry_AddRemoveCount(t *testing.T) {
	r := NewRegistry()
	a, b := newMockConn("a"), newMockConn("b")

	var changes []Change
	r.OnChange(func(ch Change) { changes = append(changes, ch) })

	assert.True(t, r.Add(a))
	assert.False(t, r.Add(a))
	assert.True(t, r.Add(b))
	assert.Equal(t, 2, r.Count())
	assert.True(t, r.Has(a))

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.False(t, r.Has(a))
	assert.Equal(t, 1, r.Count())

	require.Len(t, changes, 3)
	assert.Equal(t, Change{Conn: a, Joined: true, Count: 1}, changes[0])
	assert.Equal(t, Change{Conn: b, Joined: true, Count: 2}, changes[1])
	assert.Equal(t, Change{Conn: a, Joined: false, Count: 1}, changes[2])
}

func TestRegistry_RemoveWhileIterating(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Add(newMockConn(id))
	}

	seen := 0
	for _, c := range r.All() {
		seen++
		r.Remove(c)
	}

	assert.Equal(t, 4, seen)
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.All())
}

func TestRegistry_AllIsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add(newMockConn("a"))

	snap := r.All()
	r.Add(newMockConn("b"))

	assert.Len(t, snap, 1)
	assert.Len(t, r.All(), 2)
}

func TestSocketSet(t *testing.T) {
	s := newSocketSet()
	a := newMockConn("a")

	s.add(a)
	s.add(a)
	assert.Equal(t, 1, s.len())

	s.remove(a)
	assert.Equal(t, 0, s.len())
	assert.Empty(t, s.snapshot())
}

var errBufferFull = errors.New("send buffer full")
