// Package relay fans new messages out across server processes through a
// shared broker. Publishers implement messaging.Broadcaster; subscribers hand
// every received envelope to the local hub.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/proto"
	"github.com/vovakirdan/practicechat/internal/store"
)

// ErrInvalidEnvelope is returned for payloads that are not relay envelopes.
var ErrInvalidEnvelope = errors.New("invalid relay envelope")

// Envelope is the broker payload for one new message.
type Envelope struct {
	ConversationID int64         `json:"conversationId"`
	Message        proto.Message `json:"message"`
}

// Deliverer is the local fan-out target, normally *core.Hub.
type Deliverer interface {
	Deliver(conversationID int64, msg proto.Message) int
}

// Publisher is a broker-backed Broadcaster with a local subscription.
type Publisher interface {
	Broadcast(ctx context.Context, conversationID int64, msg *store.Message) error
	Subscribe(ctx context.Context, d Deliverer) error
	Close() error
}

// Encode builds the broker payload for a message.
func Encode(conversationID int64, msg *store.Message) ([]byte, error) {
	return json.Marshal(Envelope{ConversationID: conversationID, Message: core.WireMessage(msg)})
}

// Decode parses a broker payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.ConversationID <= 0 || env.Message.ID <= 0 {
		return Envelope{}, fmt.Errorf("%w: missing ids", ErrInvalidEnvelope)
	}
	return env, nil
}

// deliver decodes one broker payload and hands it to d. Bad payloads are logged and dropped.
func deliver(logger *zerolog.Logger, d Deliverer, data []byte) bool {
	env, err := Decode(data)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping relay payload")
		return false
	}
	n := d.Deliver(env.ConversationID, env.Message)
	logger.Debug().Int64("conversation_id", env.ConversationID).Int("delivered", n).Msg("relay delivery")
	return true
}
