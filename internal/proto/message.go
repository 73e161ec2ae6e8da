package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	InboundTypeJoinConversation = "join_conversation"

	OutboundTypeJoined     = "joined"
	OutboundTypeNewMessage = "new_message"
)

var (
	// ErrUnknownFrame is returned for frames whose type is not recognized.
	ErrUnknownFrame = errors.New("unknown frame type")
	// ErrInvalidFrame is returned for frames missing required fields.
	ErrInvalidFrame = errors.New("invalid frame")
)

// JoinConversation is the only client-to-server frame.
type JoinConversation struct {
	ConversationID int64
}

type inboundWire struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
}

// MarshalJSON encodes the frame with its type tag.
func (f JoinConversation) MarshalJSON() ([]byte, error) {
	return json.Marshal(inboundWire{Type: InboundTypeJoinConversation, ConversationID: f.ConversationID})
}

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (JoinConversation, error) {
	var wire inboundWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return JoinConversation{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if wire.Type != InboundTypeJoinConversation {
		return JoinConversation{}, fmt.Errorf("%w: %q", ErrUnknownFrame, wire.Type)
	}
	if wire.ConversationID <= 0 {
		return JoinConversation{}, fmt.Errorf("%w: conversationId is required", ErrInvalidFrame)
	}
	return JoinConversation{ConversationID: wire.ConversationID}, nil
}

// Message is the wire form of a persisted message, shared by REST and realtime.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	Blocked        bool      `json:"blocked"`
	BlockReason    *string   `json:"blockReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Outbound is a server-to-client frame: either Joined or NewMessage.
type Outbound interface {
	outbound()
	FrameType() string
}

// Joined acknowledges a join_conversation frame.
type Joined struct {
	ConversationID int64
}

// NewMessage announces a newly persisted message.
type NewMessage struct {
	ConversationID int64
	Message        Message
}

func (Joined) outbound()     {}
func (NewMessage) outbound() {}

// FrameType returns the wire tag.
func (Joined) FrameType() string { return OutboundTypeJoined }

// FrameType returns the wire tag.
func (NewMessage) FrameType() string { return OutboundTypeNewMessage }

type outboundWire struct {
	Type           string   `json:"type"`
	ConversationID int64    `json:"conversationId"`
	Message        *Message `json:"message,omitempty"`
}

// MarshalJSON encodes the frame with its type tag.
func (f Joined) MarshalJSON() ([]byte, error) {
	return json.Marshal(outboundWire{Type: OutboundTypeJoined, ConversationID: f.ConversationID})
}

// MarshalJSON encodes the frame with its type tag.
func (f NewMessage) MarshalJSON() ([]byte, error) {
	msg := f.Message
	return json.Marshal(outboundWire{Type: OutboundTypeNewMessage, ConversationID: f.ConversationID, Message: &msg})
}

// DecodeOutbound parses a server frame.
func DecodeOutbound(data []byte) (Outbound, error) {
	var wire outboundWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if wire.ConversationID <= 0 {
		return nil, fmt.Errorf("%w: conversationId is required", ErrInvalidFrame)
	}

	switch wire.Type {
	case OutboundTypeJoined:
		return Joined{ConversationID: wire.ConversationID}, nil
	case OutboundTypeNewMessage:
		if wire.Message == nil {
			return nil, fmt.Errorf("%w: message is required", ErrInvalidFrame)
		}
		return NewMessage{ConversationID: wire.ConversationID, Message: *wire.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, wire.Type)
	}
}
