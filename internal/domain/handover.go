package domain

import (
	"time"
)

// HandoverToken authorizes a single human-agent email handoff. Tokens are
// single-use and time-boxed.
type HandoverToken struct {
	Token          string    `json:"token"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Used           bool      `json:"used"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *HandoverToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Usable reports whether the token can still be claimed.
func (t *HandoverToken) Usable(now time.Time) bool {
	return !t.Used && !t.Expired(now)
}
