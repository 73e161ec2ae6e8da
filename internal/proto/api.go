package proto

import "time"

// HeaderConversationID carries the Announcements conversation id on GET /announcements.
const HeaderConversationID = "X-Conversation-Id"

// Conversation is the REST form of a conversation.
type Conversation struct {
	ID             int64     `json:"id"`
	PracticeID     int64     `json:"practiceId"`
	ParticipantIDs []int64   `json:"participantIds"`
	Title          *string   `json:"title,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreateConversationRequest is the body of POST /conversations.
// PracticeID is optional and must match the session when present.
type CreateConversationRequest struct {
	PracticeID     int64   `json:"practiceId,omitempty"`
	ParticipantIDs []int64 `json:"participantIds"`
	Title          *string `json:"title,omitempty"`
}

// SendMessageRequest is the body of POST /messages. The sender comes from the session.
type SendMessageRequest struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
}

// ErrorResponse is the body of every non-2xx REST response.
// Reason is set only for content-blocked rejections.
type ErrorResponse struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}
