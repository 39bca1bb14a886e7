// Package persona renders templated assistant replies in a tenant's voice.
// Generation is intentionally mocked: replies come from persona templates
// and knowledge-base lookups, streamed token by token. A real model can be
// swapped in behind the same Generator interface.
package persona

import (
	"context"
	"iter"
	"strings"

	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/knowledge"
)

// Token is one streamed fragment of a reply.
type Token struct {
	Text       string
	Confidence float64
}

// Request describes one turn to generate a reply for.
type Request struct {
	TenantID       string
	ConversationID string
	Message        string
	Persona        domain.Persona
}

// Generator produces a reply as a token stream. Implementations must stop
// yielding promptly when ctx is cancelled.
type Generator interface {
	Reply(ctx context.Context, req Request) iter.Seq2[Token, error]
}

// fallbackConfidence is reported on tokens of a fallback reply so the widget
// can render them as uncertain.
const fallbackConfidence = 0.2

// TemplateGenerator is the default mock generator: knowledge-base answer
// when a lookup matches, persona fallback line otherwise.
type TemplateGenerator struct {
	kb *knowledge.Base
}

// NewTemplateGenerator creates a generator backed by the given knowledge base.
func NewTemplateGenerator(kb *knowledge.Base) *TemplateGenerator {
	return &TemplateGenerator{kb: kb}
}

// Reply composes the reply text and yields it word by word.
func (g *TemplateGenerator) Reply(ctx context.Context, req Request) iter.Seq2[Token, error] {
	p := req.Persona
	if p.IsZero() {
		p = domain.DefaultPersona()
	}

	text := p.Fallback
	confidence := fallbackConfidence
	if hit, ok := g.kb.Best(req.TenantID, req.Message); ok {
		text = hit.Entry.Answer
		confidence = hit.Confidence
	} else if isGreeting(req.Message) {
		text = p.Greeting
		confidence = 1
	}

	return func(yield func(Token, error) bool) {
		for _, word := range strings.Fields(text) {
			if ctx.Err() != nil {
				return
			}
			if !yield(Token{Text: word + " ", Confidence: confidence}, nil) {
				return
			}
		}
	}
}

var greetingWords = []string{"hallo", "hoi", "hey", "goedemorgen", "goedemiddag", "goedenavond"}

func isGreeting(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, w := range greetingWords {
		if m == w || strings.HasPrefix(m, w+" ") || strings.HasPrefix(m, w+",") || strings.HasPrefix(m, w+"!") {
			return true
		}
	}
	return false
}
