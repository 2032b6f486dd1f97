package v1

import "encoding/json"

// Message is the single frame shape used in both directions.
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	From    string          `json:"from,omitempty"`
	Message string          `json:"message,omitempty"`

	// Raw is the frame as received. It is never serialized.
	Raw json.RawMessage `json:"-"`
}

// ConnectedData is the data of a TypeConnected frame.
type ConnectedData struct {
	UserID string `json:"userId"`
	OrgID  string `json:"orgId,omitempty"`
}

// Pong returns the reply to a ping.
func Pong() Message { return Message{Type: TypePong} }

// Error returns a TypeError frame carrying msg.
func Error(msg string) Message { return Message{Type: TypeError, Message: msg} }

// Echo wraps an inbound frame for TypeEcho.
func Echo(in Message) Message { return Message{Type: TypeEcho, Data: in.Raw} }

// Broadcast returns the outbound fan-out frame for data sent by principalID.
func Broadcast(principalID string, data json.RawMessage) Message {
	return Message{Type: TypeBroadcast, Data: data, From: principalID}
}

// Connected returns the greeting frame for a principal.
func Connected(userID, orgID string) Message {
	b, _ := json.Marshal(ConnectedData{UserID: userID, OrgID: orgID})
	return Message{Type: TypeConnected, Data: b}
}
