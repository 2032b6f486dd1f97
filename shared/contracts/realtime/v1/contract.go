// Package v1 defines the predixa realtime wire contract.
//
// Every frame in both directions is one JSON object:
//
//	{ "type": string, "data"?: any, "from"?: principalId, "message"?: string }
//
// Inbound types the server acts on are ping and broadcast; anything else is echoed.
// Outbound types are connected, pong, broadcast, echo and error.
//
// The package is shared by the server gateway and Go clients and has no dependencies
// beyond the standard library.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Type constants (wire-stable).
const (
	// TypePing is a client liveness probe; the server answers TypePong.
	TypePing = "ping"
	TypePong = "pong"

	// TypeBroadcast fans data out to every member of the sender's organization room,
	// the sender included. Outbound frames carry From.
	TypeBroadcast = "broadcast"

	// TypeConnected greets a freshly authenticated connection.
	TypeConnected = "connected"

	// TypeEcho returns an unrecognized inbound frame verbatim under data.
	TypeEcho = "echo"

	// TypeError reports a per-frame problem; the connection stays open.
	TypeError = "error"
)

// Close codes used during the upgrade handshake.
const (
	CloseNoToken      = 4001
	CloseInvalidToken = 4002

	ReasonNoToken      = "No token provided"
	ReasonInvalidToken = "Invalid token"
)

// Error messages carried in TypeError frames.
const (
	ErrMsgInvalidFormat = "Invalid message format"
	ErrMsgNoRoom        = "Not in an organization room"
)

// ErrInvalidFormat is returned by Decode for frames that are not JSON.
var ErrInvalidFormat = errors.New("invalid message format")

// Decode parses an inbound frame.
//
// Any well-formed JSON is accepted. Frames that are not objects, or whose type is not a
// string, decode with an empty Type and are therefore echoed. Raw always holds the
// original frame.
func Decode(b []byte) (Message, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || !json.Valid(b) {
		return Message{}, ErrInvalidFormat
	}

	var m Message
	if b[0] == '{' {
		if err := json.Unmarshal(b, &m); err != nil {
			m = Message{}
		}
	}
	m.Raw = append(json.RawMessage(nil), b...)
	return m, nil
}

// Encode marshals m for the wire.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
