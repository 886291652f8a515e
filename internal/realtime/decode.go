package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errNotObject       = errors.New("frame is not a JSON object")
	errMissingStreamID = errors.New("inference_score without stream_id")
	errNullPayload     = errors.New("alert without payload")
)

// normalize parses a raw frame into an Envelope. Frames already shaped as
// {type, data} pass through; any other object is wrapped whole as data.
func normalize(frame []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Envelope{}, err
	}
	if fields == nil {
		return Envelope{}, errNotObject
	}

	var typ MessageType
	if raw, ok := fields["type"]; ok {
		// A non-string type leaves typ empty; the frame is then ignored.
		_ = json.Unmarshal(raw, &typ)
	}

	var ts string
	if raw, ok := fields["timestamp"]; ok {
		_ = json.Unmarshal(raw, &ts)
	}

	if data, ok := fields["data"]; ok && typ != "" && !falsy(data) {
		return Envelope{Type: typ, Data: data, Timestamp: ts}, nil
	}
	return Envelope{Type: typ, Data: json.RawMessage(frame), Timestamp: ts}, nil
}

// falsy matches the JSON values a dynamic client would treat as "no data".
func falsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

func decodeScore(data json.RawMessage) (ScoreMessage, error) {
	var s ScoreMessage
	if err := json.Unmarshal(data, &s); err != nil {
		return ScoreMessage{}, fmt.Errorf("decode score: %w", err)
	}
	if s.StreamID == "" {
		return ScoreMessage{}, errMissingStreamID
	}
	return s, nil
}

func decodeAlert(typ MessageType, data json.RawMessage) (AlertMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return AlertMessage{}, errNullPayload
	}
	var a AlertMessage
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return AlertMessage{}, fmt.Errorf("decode alert: %w", err)
	}
	if a.Type == "" {
		a.Type = typ
	}
	return a, nil
}
