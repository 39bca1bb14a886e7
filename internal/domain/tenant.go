package domain

import (
	"time"
)

// Tenant represents a customer whose widget traffic and configuration are
// isolated from other tenants.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Persona   Persona   `json:"persona"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Persona describes how the assistant presents itself for a tenant.
type Persona struct {
	Name     string `json:"name"`
	Tone     string `json:"tone"`
	Greeting string `json:"greeting"`
	Fallback string `json:"fallback"`
}

// DefaultPersona is used for tenants without a configured persona.
func DefaultPersona() Persona {
	return Persona{
		Name:     "Sam",
		Tone:     "vriendelijk",
		Greeting: "Hallo! Waarmee kan ik je helpen?",
		Fallback: "Dat weet ik helaas niet zeker. Zal ik je doorverbinden met een medewerker?",
	}
}

// IsZero reports whether the persona is unconfigured.
func (p Persona) IsZero() bool {
	return p.Name == "" && p.Greeting == "" && p.Fallback == ""
}
