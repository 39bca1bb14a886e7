// Package domain contains core domain types for the babbelbox backend.
package domain

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a stream event variant on the wire.
type EventType string

const (
	// EventPersona carries assistant persona metadata, sent before typing.
	EventPersona EventType = "persona"
	// EventTyping signals that the assistant started composing a reply.
	EventTyping EventType = "typing"
	// EventContent carries one incremental reply token.
	EventContent EventType = "content"
	// EventDone terminates a successful turn.
	EventDone EventType = "done"
	// EventError terminates a failed turn after the stream has started.
	EventError EventType = "error"
)

// StreamEvent is the closed set of events exchanged over one chat stream.
// Exactly one terminal event (done or error) ends every stream.
type StreamEvent interface {
	Kind() EventType
}

// PersonaEvent announces the assistant identity for the turn.
type PersonaEvent struct {
	Type EventType `json:"type"`
	Name string    `json:"name"`
	Tone string    `json:"tone,omitempty"`
}

// NewPersonaEvent creates a persona metadata event.
func NewPersonaEvent(name, tone string) PersonaEvent {
	return PersonaEvent{Type: EventPersona, Name: name, Tone: tone}
}

// Kind returns the event type tag.
func (PersonaEvent) Kind() EventType { return EventPersona }

// TypingEvent signals reply composition has begun. Sent at most once per turn.
type TypingEvent struct {
	Type EventType `json:"type"`
}

// NewTypingEvent creates a typing event.
func NewTypingEvent() TypingEvent { return TypingEvent{Type: EventTyping} }

// Kind returns the event type tag.
func (TypingEvent) Kind() EventType { return EventTyping }

// ContentEvent carries one incremental text token of the reply.
type ContentEvent struct {
	Type       EventType `json:"type"`
	Token      string    `json:"token"`
	Confidence float64   `json:"confidence,omitempty"`
}

// NewContentEvent creates a content token event.
func NewContentEvent(token string, confidence float64) ContentEvent {
	return ContentEvent{Type: EventContent, Token: token, Confidence: confidence}
}

// Kind returns the event type tag.
func (ContentEvent) Kind() EventType { return EventContent }

// DoneEvent terminates a successful turn.
type DoneEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
}

// NewDoneEvent creates a done event.
func NewDoneEvent(conversationID string) DoneEvent {
	return DoneEvent{Type: EventDone, ConversationID: conversationID}
}

// Kind returns the event type tag.
func (DoneEvent) Kind() EventType { return EventDone }

// ErrorEvent terminates a failed turn in-band; the HTTP status is already 200
// by the time it can occur.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// NewErrorEvent creates an error event.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

// Kind returns the event type tag.
func (ErrorEvent) Kind() EventType { return EventError }

// ParseStreamEvent decodes a JSON event payload into its concrete variant.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch envelope.Type {
	case EventPersona:
		var ev PersonaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode persona event: %w", err)
		}
		return ev, nil
	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode typing event: %w", err)
		}
		return ev, nil
	case EventContent:
		var ev ContentEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode content event: %w", err)
		}
		return ev, nil
	case EventDone:
		var ev DoneEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode done event: %w", err)
		}
		return ev, nil
	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode error event: %w", err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.Type)
	}
}
