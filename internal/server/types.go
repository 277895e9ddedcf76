// Package server defines transport errors and utility helpers shared by the
// client pumps and the HTTP handlers.
package server

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrSendBufferFull is returned by Client.Send when the client's outbound
	// queue cannot take another frame.
	ErrSendBufferFull = errors.New("server: send buffer full")

	// ErrClientClosed is returned by Client.Send after the client started
	// closing.
	ErrClientClosed = errors.New("server: client closed")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
