// Package messaging authorizes, filters, persists and announces practice messages.
package messaging

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/practicechat/internal/metrics"
	"github.com/vovakirdan/practicechat/internal/safety"
	"github.com/vovakirdan/practicechat/internal/store"
)

// Identity is the caller as resolved by the session layer.
type Identity struct {
	UserID     int64
	PracticeID int64
}

// Broadcaster pushes a newly created message to realtime clients.
// Delivery is best-effort; errors are logged by the caller, never surfaced.
type Broadcaster interface {
	Broadcast(ctx context.Context, conversationID int64, msg *store.Message) error
}

// Option configures a Service.
type Option func(*Service)

// WithAnnouncementSeed sets the texts posted into a freshly provisioned,
// still empty Announcements conversation.
func WithAnnouncementSeed(texts ...string) Option {
	return func(s *Service) {
		s.seed = texts
	}
}

// Service provides messaging business logic.
type Service struct {
	store       store.Store
	classifier  safety.ContentClassifier
	broadcaster Broadcaster
	seed        []string
	log         *zerolog.Logger

	provision singleflight.Group
}

// New creates a messaging service. broadcaster may be nil.
func New(st store.Store, classifier safety.ContentClassifier, broadcaster Broadcaster, logger *zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       st,
		classifier:  classifier,
		broadcaster: broadcaster,
		log:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage runs the send pipeline. Each step short-circuits; only a fully
// successful run creates a message.
func (s *Service) SendMessage(ctx context.Context, sender Identity, conversationID int64, content string) (*store.Message, error) {
	msg, err := s.sendMessage(ctx, sender, conversationID, content)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues(rejectLabel(err)).Inc()
		return nil, err
	}
	metrics.MessagesSent.Inc()
	return msg, nil
}

func (s *Service) sendMessage(ctx context.Context, sender Identity, conversationID int64, content string) (*store.Message, error) {
	if err := s.resolve(ctx, sender); err != nil {
		return nil, err
	}

	if conversationID <= 0 {
		return nil, invalid("conversation id is required")
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, invalid("content is required")
	}

	if verdict := s.classifier.Evaluate(text); !verdict.Safe {
		s.log.Debug().
			Int64("user_id", sender.UserID).
			Int64("conversation_id", conversationID).
			Str("reason", verdict.Reason).
			Msg("message blocked by content filter")
		return nil, &BlockedError{Reason: verdict.Reason}
	}

	if _, err := s.participantConversation(ctx, sender, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, conversationID, sender.UserID, text)
	if err != nil {
		return nil, storageError("create message", err)
	}

	s.broadcast(ctx, msg)
	return msg, nil
}

// CreateConversation validates participants against the requester's practice
// and persists a new conversation. The requester is prepended when absent.
func (s *Service) CreateConversation(ctx context.Context, requester Identity, participantIDs []int64, title *string) (*store.Conversation, error) {
	if err := s.resolve(ctx, requester); err != nil {
		return nil, err
	}
	if len(participantIDs) == 0 {
		return nil, invalid("at least one participant is required")
	}

	ids := participantIDs
	if !contains(ids, requester.UserID) {
		ids = append([]int64{requester.UserID}, participantIDs...)
	}
	for _, id := range ids {
		member, err := s.store.GetMember(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid("participant " + strconv.FormatInt(id, 10) + " is not a practice member")
			}
			return nil, storageError("get member", err)
		}
		if member.PracticeID != requester.PracticeID {
			return nil, invalid("participant " + strconv.FormatInt(id, 10) + " is not a practice member")
		}
	}

	var normalized *string
	if title != nil {
		if t := strings.TrimSpace(*title); t != "" {
			if strings.EqualFold(t, store.AnnouncementsTitle) {
				return nil, invalid("title is reserved")
			}
			normalized = &t
		}
	}

	conv, err := s.store.CreateConversation(ctx, requester.PracticeID, ids, normalized)
	if err != nil {
		return nil, storageError("create conversation", err)
	}

	s.log.Info().
		Int64("conversation_id", conv.ID).
		Int64("practice_id", conv.PracticeID).
		Int("participants", len(conv.ParticipantIDs)).
		Msg("conversation created")
	return conv, nil
}

// ListConversations lists the caller's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, caller Identity) ([]*store.Conversation, error) {
	if err := s.resolve(ctx, caller); err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversationsForUser(ctx, caller.UserID, caller.PracticeID)
	if err != nil {
		return nil, storageError("list conversations", err)
	}
	return convs, nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Service) ListMessages(ctx context.Context, caller Identity, conversationID int64) ([]*store.Message, error) {
	if err := s.resolve(ctx, caller); err != nil {
		return nil, err
	}
	if _, err := s.participantConversation(ctx, caller, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessagesForConversation(ctx, conversationID)
	if err != nil {
		return nil, storageError("list messages", err)
	}
	return msgs, nil
}

// Announcements returns the practice's Announcements conversation and its
// messages, provisioning it on first request. The participant set is a
// snapshot of the roster at creation time.
func (s *Service) Announcements(ctx context.Context, caller Identity) (*store.Conversation, []*store.Message, error) {
	if err := s.resolve(ctx, caller); err != nil {
		return nil, nil, err
	}

	// Followers share the leader's result, so the leader's cancellation must
	// not fail them.
	shared := context.WithoutCancel(ctx)
	key := strconv.FormatInt(caller.PracticeID, 10)
	v, err, _ := s.provision.Do(key, func() (any, error) {
		return s.ensureAnnouncements(shared, caller.PracticeID)
	})
	if err != nil {
		return nil, nil, err
	}
	conv := v.(*store.Conversation)

	msgs, err := s.store.ListMessagesForConversation(ctx, conv.ID)
	if err != nil {
		return nil, nil, storageError("list announcements", err)
	}
	return conv, msgs, nil
}

func (s *Service) ensureAnnouncements(ctx context.Context, practiceID int64) (*store.Conversation, error) {
	conv, err := s.store.FindConversationByTitle(ctx, practiceID, store.AnnouncementsTitle)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		members, err := s.store.ListPracticeMembers(ctx, practiceID)
		if err != nil {
			return nil, storageError("list practice members", err)
		}
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		title := store.AnnouncementsTitle
		conv, err = s.store.CreateConversation(ctx, practiceID, ids, &title)
		if err != nil {
			return nil, storageError("create announcements", err)
		}
		metrics.AnnouncementsProvisioned.Inc()
		s.log.Info().
			Int64("practice_id", practiceID).
			Int64("conversation_id", conv.ID).
			Int("participants", len(ids)).
			Msg("announcements conversation provisioned")
	default:
		return nil, storageError("find announcements", err)
	}

	if err := s.seedAnnouncements(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// seedAnnouncements posts the seed texts only while the conversation is empty.
func (s *Service) seedAnnouncements(ctx context.Context, conv *store.Conversation) error {
	if len(s.seed) == 0 {
		return nil
	}
	existing, err := s.store.ListMessagesForConversation(ctx, conv.ID)
	if err != nil {
		return storageError("list announcements", err)
	}
	if len(existing) > 0 {
		return nil
	}

	author := conv.ParticipantIDs[0]
	for _, text := range s.seed {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if verdict := s.classifier.Evaluate(text); !verdict.Safe {
			s.log.Warn().Str("reason", verdict.Reason).Msg("skipping blocked announcement seed")
			continue
		}
		msg, err := s.store.CreateMessage(ctx, conv.ID, author, text)
		if err != nil {
			return storageError("seed announcement", err)
		}
		s.broadcast(ctx, msg)
	}
	return nil
}

// resolve checks that the identity is a member of the practice it claims.
func (s *Service) resolve(ctx context.Context, id Identity) error {
	if id.UserID <= 0 || id.PracticeID <= 0 {
		return ErrUnauthorized
	}
	member, err := s.store.GetMember(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return storageError("get member", err)
	}
	if member.PracticeID != id.PracticeID {
		return ErrUnauthorized
	}
	return nil
}

// participantConversation loads a conversation scoped to the caller's practice
// and participation. Every miss reports ErrNotFound.
func (s *Service) participantConversation(ctx context.Context, caller Identity, conversationID int64) (*store.Conversation, error) {
	if conversationID <= 0 {
		return nil, ErrNotFound
	}
	conv, err := s.store.GetConversation(ctx, conversationID, caller.PracticeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("get conversation", err)
	}
	if !conv.HasParticipant(caller.UserID) {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *Service) broadcast(ctx context.Context, msg *store.Message) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(ctx, msg.ConversationID, msg); err != nil {
		metrics.BroadcastFailures.Inc()
		s.log.Warn().Err(err).
			Int64("conversation_id", msg.ConversationID).
			Int64("message_id", msg.ID).
			Msg("broadcast failed")
	}
}

func rejectLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrContentBlocked):
		return "content_blocked"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "storage"
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
