// Package sse implements the server-sent-events wire format used between
// backend and widget: one "data: <JSON>\n\n" frame per stream event.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mverkuijl/babbelbox/internal/domain"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush,
// which makes SSE impossible on this connection.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer streams events over one HTTP response. Once created, the response
// status is committed to 200; later failures go out as in-band error events.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter sets the SSE headers and prepares the response for streaming.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &Writer{w: w, f: f}, nil
}

// Send writes one event frame and flushes it to the client.
func (s *Writer) Send(ev domain.StreamEvent) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.f.Flush()
	return nil
}

// Encode renders an event as a single wire frame.
func Encode(ev domain.StreamEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}
