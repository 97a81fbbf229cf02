package gemini

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

// Session is a Gemini chat session. The full transcript is re-sent on every
// turn; the API keeps no server-side state.
type Session struct {
	client      *Client
	model       string
	instruction string

	mu      sync.Mutex
	history []analysis.ChatMessage
}

// CreateSession implements ai.Conversational.
func (c *Client) CreateSession(history []analysis.ChatMessage, systemInstruction string) (ai.Session, error) {
	if c.config.APIKey == "" {
		return nil, ai.ErrNoAPIKey
	}
	return &Session{
		client:      c,
		model:       c.config.ChatModel,
		instruction: systemInstruction,
		history:     append([]analysis.ChatMessage(nil), history...),
	}, nil
}

// History returns a copy of the transcript.
func (s *Session) History() []analysis.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analysis.ChatMessage(nil), s.history...)
}

// SendStreaming implements ai.Session.
func (s *Session) SendStreaming(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.Lock()
		contents := make([]content, 0, len(s.history)+1)
		for _, m := range s.history {
			contents = append(contents, content{Role: m.Role, Parts: []part{{Text: m.Text}}})
		}
		s.mu.Unlock()
		contents = append(contents, content{Role: analysis.RoleUser, Parts: []part{{Text: message}}})

		body := &generateContentRequest{
			Contents:          contents,
			SystemInstruction: systemContent(s.instruction),
		}

		var reply strings.Builder
		stopped := false
		err := s.client.stream(ctx, s.model, body, func(chunk *generateContentResponse) bool {
			delta := chunk.text()
			if delta == "" {
				return true
			}
			reply.WriteString(delta)
			if !yield(delta, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil {
			yield("", err)
			return
		}
		if stopped {
			return
		}

		s.mu.Lock()
		s.history = append(s.history,
			analysis.ChatMessage{Role: analysis.RoleUser, Text: message},
			analysis.ChatMessage{Role: analysis.RoleModel, Text: reply.String()})
		s.mu.Unlock()
	}
}
