package transport

import (
	"encoding/json"
	"fmt"
)

// Frame kinds exchanged over the socket.
const (
	FrameKindMessage           = "message"
	FrameKindNegotiate         = "negotiate"
	FrameKindNegotiationResult = "negotiation_result"
)

// Frame is the websocket envelope: a kind discriminant plus the raw payload.
type Frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeFrame wraps a payload value into a serialized frame.
func EncodeFrame(kind string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	data, err := json.Marshal(Frame{Kind: kind, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", kind, err)
	}
	return data, nil
}

// DecodeFrame parses a serialized frame, validating the kind.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	switch f.Kind {
	case FrameKindMessage, FrameKindNegotiate, FrameKindNegotiationResult:
		return f, nil
	}
	return Frame{}, fmt.Errorf("unknown frame kind %q", f.Kind)
}
