package persona

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator streams replies from the OpenAI chat completions API. It
// is the optional passthrough mode; the template generator remains the
// default.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a passthrough generator. An empty model falls
// back to gpt-4o-mini.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Reply streams completion deltas as tokens. Persona tone and fallback are
// passed along as the system prompt.
func (g *OpenAIGenerator) Reply(ctx context.Context, req Request) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		system := fmt.Sprintf(
			"Je bent %s, een %s klantenservice-assistent. Antwoord kort en in het Nederlands. Als je het antwoord niet weet, zeg dan: %q",
			req.Persona.Name, req.Persona.Tone, req.Persona.Fallback,
		)
		stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: req.Message},
			},
			Stream: true,
		})
		if err != nil {
			yield(Token{}, fmt.Errorf("open completion stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Token{}, fmt.Errorf("receive completion chunk: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(Token{Text: delta}, nil) {
				return
			}
		}
	}
}
