package http

import (
	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/proto"
	"github.com/vovakirdan/practicechat/internal/store"
)

func conversationResponse(c *store.Conversation) proto.Conversation {
	return proto.Conversation{
		ID:             c.ID,
		PracticeID:     c.PracticeID,
		ParticipantIDs: c.ParticipantIDs,
		Title:          c.Title,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func conversationsResponse(convs []*store.Conversation) []proto.Conversation {
	out := make([]proto.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationResponse(c))
	}
	return out
}

func messagesResponse(msgs []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, core.WireMessage(m))
	}
	return out
}
