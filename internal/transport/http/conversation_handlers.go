package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/proto"
)

// MessagingHandlers provides HTTP handlers for conversations and messages.
type MessagingHandlers struct {
	svc *messaging.Service
	log *zerolog.Logger
}

// NewMessagingHandlers creates a new handlers instance.
func NewMessagingHandlers(svc *messaging.Service, logger *zerolog.Logger) *MessagingHandlers {
	return &MessagingHandlers{svc: svc, log: logger}
}

// ListConversations lists the caller's conversations.
// GET /conversations
func (h *MessagingHandlers) ListConversations(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		unauthorized(c, "unauthorized")
		return
	}

	convs, err := h.svc.ListConversations(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, conversationsResponse(convs))
}

// CreateConversation creates a conversation in the caller's practice.
// POST /conversations
func (h *MessagingHandlers) CreateConversation(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		unauthorized(c, "unauthorized")
		return
	}

	var req proto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		badRequest(c, "invalid request body")
		return
	}
	if req.PracticeID != 0 && req.PracticeID != id.PracticeID {
		unauthorized(c, "session does not match request")
		return
	}

	conv, err := h.svc.CreateConversation(c.Request.Context(), id, req.ParticipantIDs, req.Title)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, conversationResponse(conv))
}

// ListMessages lists a conversation's messages oldest first.
// GET /conversations/:id/messages
func (h *MessagingHandlers) ListMessages(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		unauthorized(c, "unauthorized")
		return
	}

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		badRequest(c, "invalid conversation id")
		return
	}

	msgs, err := h.svc.ListMessages(c.Request.Context(), id, conversationID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messagesResponse(msgs))
}

// SendMessage sends a message as the session's member.
// POST /messages
func (h *MessagingHandlers) SendMessage(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		unauthorized(c, "unauthorized")
		return
	}

	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), id, req.ConversationID, req.Content)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Debug().
		Int64("message_id", msg.ID).
		Int64("conversation_id", msg.ConversationID).
		Int64("sender_id", msg.SenderID).
		Msg("message sent")
	c.JSON(http.StatusOK, core.WireMessage(msg))
}

// Announcements returns the practice's announcement messages, provisioning
// the conversation on first use.
// GET /announcements
func (h *MessagingHandlers) Announcements(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		unauthorized(c, "unauthorized")
		return
	}

	conv, msgs, err := h.svc.Announcements(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.Header(proto.HeaderConversationID, strconv.FormatInt(conv.ID, 10))
	c.JSON(http.StatusOK, messagesResponse(msgs))
}
