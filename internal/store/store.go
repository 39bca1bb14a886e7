// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/mverkuijl/babbelbox/internal/domain"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrTokenConsumed = errors.New("handover token already used or expired")
)

// Repository defines the interface for persisting tenant, conversation and
// compliance data.
type Repository interface {
	// GetTenant retrieves a tenant by ID. Returns ErrNotFound when absent.
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	// UpsertTenant creates or updates a tenant record.
	UpsertTenant(ctx context.Context, tenant *domain.Tenant) error

	// CreateConversation stores a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation scoped to a tenant.
	// Returns ErrNotFound when absent.
	GetConversation(ctx context.Context, tenantID, conversationID string) (*domain.Conversation, error)

	// AppendMessage adds a message to a conversation and touches the
	// conversation's updated_at timestamp.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// GetMessages returns a conversation's messages in insertion order.
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// DeleteConversation removes a conversation and its messages. Used for
	// GDPR delete requests; returns the number of messages removed.
	DeleteConversation(ctx context.Context, tenantID, conversationID string) (int64, error)

	// CreateConsent stores a consent decision.
	CreateConsent(ctx context.Context, rec *domain.ConsentRecord) error

	// ListConsent returns consent records for a tenant, newest first.
	ListConsent(ctx context.Context, tenantID string) ([]domain.ConsentRecord, error)

	// CreateHandoverToken stores a new handover token.
	CreateHandoverToken(ctx context.Context, token *domain.HandoverToken) error

	// ConsumeHandoverToken atomically marks an unused, unexpired token as
	// used and returns it. Returns ErrTokenConsumed when the token exists
	// but is no longer usable, ErrNotFound when it never existed.
	ConsumeHandoverToken(ctx context.Context, token string) (*domain.HandoverToken, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
