package ws

import (
	"encoding/json"

	"github.com/violencesense/vsense/internal/realtime"
)

// Message is an outbound frame in the {type, data} envelope.
type Message struct {
	Type realtime.MessageType `json:"type"`
	Data any                  `json:"data,omitempty"`
}

func encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

var pingFrame, _ = encode(Message{Type: realtime.MsgPing})
var pongFrame, _ = encode(Message{Type: realtime.MsgPong})
