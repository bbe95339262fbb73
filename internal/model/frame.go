package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Frame kinds accepted from the relay. Anything else is dropped at the
// connection boundary before it can reach the message store.
const (
	FrameChatMessage = "chat_message"
	FrameAck         = "ack"
	FrameError       = "error"
)

// Frame is one validated inbound websocket frame.
type Frame struct {
	Kind      string
	Message   string
	Sender    string
	Recipient string
	Subject   string
	Timestamp time.Time
	ID        string // server-assigned id, "" when the relay sent none
	Detail    string // ack/error detail text
}

// OutboundFrame is the wire shape written to the live connection for an
// outgoing message.
type OutboundFrame struct {
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
}

// rawFrame mirrors the loose JSON the relay emits.
type rawFrame struct {
	Type      string `json:"type,omitempty"`
	Message   string `json:"message,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	ID        *int64 `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ParseFrame validates raw websocket data into a Frame. A frame that cannot
// be classified, or a chat frame missing its message or sender, is rejected.
func ParseFrame(data []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("invalid frame json: %w", err)
	}

	switch raw.Type {
	case FrameError:
		detail := raw.Error
		if detail == "" {
			detail = raw.Detail
		}
		return Frame{Kind: FrameError, Detail: detail}, nil
	case FrameAck:
		return Frame{Kind: FrameAck, Detail: raw.Detail}, nil
	case "", FrameChatMessage:
		// Untyped frames are chat messages; older relays never set a type
		// field on them.
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", raw.Type)
	}

	if raw.Error != "" {
		return Frame{Kind: FrameError, Detail: raw.Error}, nil
	}
	if raw.Message == "" || raw.Sender == "" {
		return Frame{}, fmt.Errorf("chat frame missing message or sender")
	}

	ts := time.Now().UTC()
	if raw.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid frame timestamp %q: %w", raw.Timestamp, err)
		}
		ts = parsed
	}

	id := ""
	if raw.ID != nil {
		id = strconv.FormatInt(*raw.ID, 10)
	}

	return Frame{
		Kind:      FrameChatMessage,
		Message:   raw.Message,
		Sender:    raw.Sender,
		Recipient: raw.Recipient,
		Subject:   raw.Subject,
		Timestamp: ts,
		ID:        id,
	}, nil
}
