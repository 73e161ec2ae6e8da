package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist
// or lies outside the requested practice.
var ErrNotFound = errors.New("not found")

// AnnouncementsTitle is the title of the practice-wide singleton conversation.
const AnnouncementsTitle = "Announcements"

// Member is a practice roster entry. The roster is owned by the staff
// records module; messaging only reads it.
type Member struct {
	ID          int64
	PracticeID  int64
	DisplayName string
	CreatedAt   time.Time
}

// Conversation is a fixed set of participants inside one practice.
type Conversation struct {
	ID             int64
	PracticeID     int64
	ParticipantIDs []int64 // ordered, at least one
	Title          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasParticipant reports whether userID is in the participant set.
func (c *Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	Blocked        bool
	BlockReason    *string
	CreatedAt      time.Time
}

// MemberStore reads the practice roster.
type MemberStore interface {
	// CreateMember adds a roster entry.
	CreateMember(ctx context.Context, practiceID int64, displayName string) (*Member, error)

	// GetMember retrieves a member by ID.
	GetMember(ctx context.Context, id int64) (*Member, error)

	// ListPracticeMembers lists every member of a practice ordered by ID.
	ListPracticeMembers(ctx context.Context, practiceID int64) ([]*Member, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation persists a conversation with both timestamps set to now.
	// Practice membership of the participants is the caller's concern.
	CreateConversation(ctx context.Context, practiceID int64, participantIDs []int64, title *string) (*Conversation, error)

	// GetConversation returns the conversation only if it belongs to practiceID.
	GetConversation(ctx context.Context, id, practiceID int64) (*Conversation, error)

	// FindConversationByTitle returns the oldest conversation in the practice with the given title.
	FindConversationByTitle(ctx context.Context, practiceID int64, title string) (*Conversation, error)

	// ListConversationsForUser lists practice conversations that include userID,
	// most recently updated first.
	ListConversationsForUser(ctx context.Context, userID, practiceID int64) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and advances the conversation's UpdatedAt.
	// It does not check that the sender participates in the conversation.
	CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error)

	// ListMessagesForConversation returns all messages ordered by creation time,
	// ties broken by insertion order.
	ListMessagesForConversation(ctx context.Context, conversationID int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MemberStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
