// Package protocol defines the JSON frames exchanged between relay clients and
// the room relay, the close codes the relay uses, and validation of inbound
// launch events.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Message types.
const (
	TypeLaunch       = "launch"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeConnected    = "connected"
	TypeClientJoined = "client_joined"
	TypeClientLeft   = "client_left"
)

// Envelope is the tag of an inbound frame. Older clients tag launches with
// "t" instead of "type"; both are honored, "type" first.
type Envelope struct {
	Type string
	T    string
}

// Kind returns the message tag, or "" when the frame carries none.
func (e Envelope) Kind() string {
	if e.Type != "" {
		return e.Type
	}
	return e.T
}

// Decode parses the tag of a raw inbound frame. Frames that are not a JSON
// object fail with ErrMalformed. Tags that are not strings are ignored.
func Decode(raw []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if fields == nil {
		return Envelope{}, errors.Wrap(ErrMalformed, "frame is not an object")
	}

	var env Envelope
	env.Type, _ = stringField(fields["type"])
	env.T, _ = stringField(fields["t"])
	return env, nil
}

// IsPing reports whether raw is a well-formed ping frame.
func IsPing(raw []byte) bool {
	env, err := Decode(raw)
	return err == nil && env.Kind() == TypePing
}

// Presence announces the room size.
type Presence struct {
	Type        string `json:"type"`
	ClientCount int    `json:"clientCount"`
}

var pong = []byte(`{"type":"pong"}`)

// Pong returns the reply to a ping frame.
func Pong() []byte {
	out := make([]byte, len(pong))
	copy(out, pong)
	return out
}

// Connected is sent once to a connection right after it joins.
func Connected(clientCount int) []byte {
	return presence(TypeConnected, clientCount)
}

// ClientJoined is broadcast to the other members when a connection joins.
func ClientJoined(clientCount int) []byte {
	return presence(TypeClientJoined, clientCount)
}

// ClientLeft is broadcast to the remaining members when a connection leaves.
func ClientLeft(clientCount int) []byte {
	return presence(TypeClientLeft, clientCount)
}

func presence(kind string, clientCount int) []byte {
	b, err := json.Marshal(Presence{Type: kind, ClientCount: clientCount})
	if err != nil {
		// a struct of a string and an int always encodes
		panic(err)
	}
	return b
}

func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
