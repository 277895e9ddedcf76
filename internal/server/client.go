// Package server manages individual WebSocket clients, handling read/write
// pumps, close handshakes, and delivery into the client's room.
package server

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/limiter"
	"github.com/Tyrowin/fireworks/internal/protocol"
	"github.com/Tyrowin/fireworks/internal/room"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	closeGrace     = 2 * time.Second
)

// Client is one WebSocket connection joined to a room. It implements
// room.Conn.
type Client struct {
	conn           *websocket.Conn
	id             string
	addr           string
	send           chan []byte
	maxMessageSize int64

	room *room.Room

	done      chan struct{}
	closeOnce sync.Once
	closeMsg  []byte
	closing   atomic.Bool

	mu    sync.Mutex
	state limiter.State
}

var _ room.Conn = (*Client)(nil)

// NewClient creates a Client for conn with a fresh id and an empty
// limiter attachment.
func NewClient(conn *websocket.Conn, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		id:             uuid.NewString(),
		addr:           addr,
		send:           make(chan []byte, sendBufferSize),
		maxMessageSize: cfg.MaxMessageSize,
		done:           make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send queues data for the write pump without blocking.
func (c *Client) Send(data []byte) error {
	if c.closing.Load() {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close asks the write pump to flush queued frames and send a close frame
// with code and reason. Only the first call has an effect.
func (c *Client) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		c.closing.Store(true)
		close(c.done)
	})
	return nil
}

// stop ends the write pump without a close frame, for connections the peer
// already closed.
func (c *Client) stop() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
	})
}

// Attachment returns the limiter state stored on the connection.
func (c *Client) Attachment() limiter.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetAttachment replaces the limiter state stored on the connection.
func (c *Client) SetAttachment(s limiter.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Client) log() *zap.Logger {
	l := logger().With(zap.String("conn", c.id), zap.String("addr", c.addr))
	if c.room != nil {
		l = l.With(zap.String("room", c.room.ID()))
	}
	return l
}

// run starts both pumps under g. The caller must have joined the client to
// r. It returns false, starting nothing, when g no longer takes pumps.
func (c *Client) run(r *room.Room, g *pumpGroup) bool {
	c.room = r
	if !g.add(2) {
		return false
	}
	go func() {
		defer g.done()
		c.writePump()
	}()
	go func() {
		defer g.done()
		c.readPump()
	}()
	return true
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log().Debug("setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if c.closing.Load() {
			return nil
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the reason a read loop ended.
func (c *Client) handleReadError(err error) {
	l := c.log()

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		l.Info("frame exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		l.Debug("client disconnected", zap.Error(err))
	case c.closing.Load():
		l.Debug("connection closed by relay", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		l.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		l.Warn("unexpected websocket close", zap.Error(err))
	default:
		l.Debug("websocket read error", zap.Error(err))
	}
}

// handleFrame routes one inbound frame. Pings are answered here and never
// reach the room.
func (c *Client) handleFrame(messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		_ = c.Close(protocol.CloseMalformed, protocol.CloseReason(protocol.CloseMalformed))
		return
	}

	if protocol.IsPing(data) {
		if err := c.Send(protocol.Pong()); err != nil {
			c.log().Debug("dropping pong", zap.Error(err))
		}
		return
	}

	c.room.Deliver(c, data)
}

func (c *Client) readPump() {
	defer func() {
		c.stop()
		c.room.Leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log().Debug("closing connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		// frames that arrive during the close handshake are discarded
		if c.closing.Load() {
			continue
		}

		c.handleFrame(messageType, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			if !c.writeTextMessage(message) {
				c.abort()
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				c.abort()
				return
			}
		case <-c.done:
			c.flush()
			c.writeCloseMessage()
			return
		}
	}
}

// abort tears the connection down after a failed write so the read pump
// unblocks.
func (c *Client) abort() {
	c.stop()
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log().Debug("closing connection in writePump", zap.Error(err))
	}
}

// flush writes whatever was queued before the client started closing.
func (c *Client) flush() {
	if c.closeMsg == nil {
		return
	}
	for {
		select {
		case message := <-c.send:
			if !c.writeTextMessage(message) {
				return
			}
		default:
			return
		}
	}
}

// writeCloseMessage starts the close handshake and gives the peer closeGrace
// to answer before the read pump gives up.
func (c *Client) writeCloseMessage() {
	if c.closeMsg == nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	if err := c.conn.WriteControl(websocket.CloseMessage, c.closeMsg, deadline); err != nil {
		if !isExpectedCloseError(err) {
			c.log().Debug("writing close message", zap.Error(err))
		}
		_ = c.conn.Close()
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(closeGrace)); err != nil {
		c.log().Debug("setting close read deadline", zap.Error(err))
	}
}

func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log().Debug("setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log().Debug("writing message", zap.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a transport ping to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log().Debug("setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log().Debug("writing ping", zap.Error(err))
		return false
	}
	return true
}
