package core

import (
	"github.com/vovakirdan/practicechat/internal/proto"
	"github.com/vovakirdan/practicechat/internal/store"
)

// WireMessage converts a persisted message to its wire form.
func WireMessage(m *store.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Blocked:        m.Blocked,
		BlockReason:    m.BlockReason,
		CreatedAt:      m.CreatedAt,
	}
}
