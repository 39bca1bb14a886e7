// Package handover issues and claims the single-use tokens that hand a chat
// conversation over to a human agent by email.
package handover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/store"
)

// DefaultTokenTTL is how long an issued token stays claimable.
const DefaultTokenTTL = 30 * time.Minute

// Service issues and consumes handover tokens.
type Service struct {
	repo   store.Repository
	mailer Mailer
	ttl    time.Duration

	now func() time.Time
}

// NewService creates a handover service. A zero ttl falls back to
// DefaultTokenTTL; a nil mailer falls back to LogMailer.
func NewService(repo store.Repository, mailer Mailer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{
		repo:   repo,
		mailer: mailer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// IssueToken creates a single-use token for the conversation and mails the
// claim link to the agent. The token is persisted before mail dispatch; a
// mail failure is reported but leaves the token claimable.
func (s *Service) IssueToken(ctx context.Context, tenantID, conversationID, agentEmail string) (*domain.HandoverToken, error) {
	if _, err := s.repo.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	now := s.now()
	token := &domain.HandoverToken{
		Token:          uuid.New().String(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.repo.CreateHandoverToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store handover token: %w", err)
	}

	mail := Mail{
		To:      agentEmail,
		Subject: "Chat handover requested",
		Body: fmt.Sprintf("A visitor asked for a human agent.\n\nConversation: %s\nClaim token: %s\nValid until: %s\n",
			conversationID, token.Token, token.ExpiresAt.Format(time.RFC3339)),
	}
	if err := s.mailer.Send(ctx, mail); err != nil {
		slog.Error("handover mail dispatch failed", "error", err, "conversation_id", conversationID)
	}

	return token, nil
}

// Claim consumes a token. Each token can be claimed exactly once; expired
// or already-used tokens return store.ErrTokenConsumed, unknown tokens
// return store.ErrNotFound.
func (s *Service) Claim(ctx context.Context, token string) (*domain.HandoverToken, error) {
	rec, err := s.repo.ConsumeHandoverToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("consume handover token: %w", err)
	}
	return rec, nil
}
