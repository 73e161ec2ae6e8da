package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/store"
)

var (
	// ErrInvalidToken is returned for tokens that fail validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownMember is returned when a token or request names a member that does not exist.
	ErrUnknownMember = errors.New("unknown member")
)

// Service issues and resolves session tokens for practice members.
type Service struct {
	store     store.MemberStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(memberStore store.MemberStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     memberStore,
		jwtConfig: jwtConfig,
	}
}

// IssueToken returns a session token for an existing member.
func (s *Service) IssueToken(ctx context.Context, memberID int64) (string, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownMember
		}
		return "", fmt.Errorf("get member: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, member.ID, member.PracticeID)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// CurrentUser resolves a token to the caller identity. The member must still
// exist and belong to the practice named in the token.
func (s *Service) CurrentUser(ctx context.Context, tokenString string) (messaging.Identity, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return messaging.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	member, err := s.store.GetMember(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return messaging.Identity{}, ErrUnknownMember
		}
		return messaging.Identity{}, fmt.Errorf("get member: %w", err)
	}
	if member.PracticeID != claims.PracticeID {
		return messaging.Identity{}, ErrInvalidToken
	}

	return messaging.Identity{UserID: member.ID, PracticeID: member.PracticeID}, nil
}
