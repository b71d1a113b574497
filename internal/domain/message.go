package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType tags every envelope exchanged on the room and widget channels.
type MessageType string

const (
	MessageJoin            MessageType = "join"
	MessageJoinSuccess     MessageType = "join_success"
	MessageWaiting         MessageType = "waiting"
	MessageSnapshot        MessageType = "snapshot"
	MessageState           MessageType = "state"
	MessageEvent           MessageType = "event"
	MessageProducerOffline MessageType = "producer_offline"
	MessageHeartbeat       MessageType = "heartbeat"
	MessageError           MessageType = "error"
	MessageWidgetData      MessageType = "widget_data"
)

// Role is the part a connection plays in a room after joining.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// ParseRole validates a role string from a join message.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleProducer:
		return RoleProducer, true
	case RoleConsumer:
		return RoleConsumer, true
	}
	return "", false
}

// Envelope is the wire format for both hubs. Payload is opaque to the relay;
// Seq and Ts are stamped by the room hub on state/event messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Role    Role            `json:"role,omitempty"`
	Token   string          `json:"token,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Ts      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseEnvelope decodes an inbound frame. A frame that is not a JSON object
// or carries no type field is rejected with ErrBadEnvelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrBadEnvelope)
	}
	return &env, nil
}

// Encode marshals the envelope for the wire. Marshalling an Envelope cannot
// fail, so callers get a plain byte slice.
func (e *Envelope) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		// All fields are marshal-safe types; this is unreachable.
		panic(fmt.Sprintf("envelope marshal: %v", err))
	}
	return data
}

// ErrorEnvelope builds the standard error frame sent to clients.
func ErrorEnvelope(msg string) *Envelope {
	return &Envelope{Type: MessageError, Error: msg}
}
