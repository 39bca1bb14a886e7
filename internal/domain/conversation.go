package domain

import (
	"time"
)

// Conversation groups the messages of one widget session for a tenant.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	VisitorID string    `json:"visitor_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRole distinguishes who authored a message.
type MessageRole string

const (
	// RoleVisitor is a message typed into the widget.
	RoleVisitor MessageRole = "visitor"
	// RoleAssistant is a generated reply.
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn half inside a conversation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConsentRecord captures a visitor's GDPR consent decision.
type ConsentRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	VisitorID string    `json:"visitor_id"`
	Purpose   string    `json:"purpose"`
	Granted   bool      `json:"granted"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationExport bundles a conversation with its messages for a GDPR
// data-access request.
type ConversationExport struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
