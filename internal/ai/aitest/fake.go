// Package aitest provides a scripted ai.Provider for tests.
package aitest

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

// Provider replays scripted responses and records every call.
type Provider struct {
	ProviderName string

	mu        sync.Mutex
	responses []*ai.GenerateResponse
	errs      []error
	requests  []*ai.GenerateRequest

	// Replies is streamed, split on spaces, by every session turn.
	Replies []string
	ChatErr error

	sessions []*Session
}

// New creates a fake that answers Generate with texts in order. The last
// text repeats once the script is exhausted.
func New(texts ...string) *Provider {
	p := &Provider{ProviderName: "fake"}
	for _, t := range texts {
		p.responses = append(p.responses, &ai.GenerateResponse{Text: t})
		p.errs = append(p.errs, nil)
	}
	return p
}

// Respond queues a full response.
func (p *Provider) Respond(resp *ai.GenerateResponse) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	p.errs = append(p.errs, nil)
	return p
}

// Fail queues an error.
func (p *Provider) Fail(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, nil)
	p.errs = append(p.errs, err)
	return p
}

// Name implements ai.Provider.
func (p *Provider) Name() string { return p.ProviderName }

// Generate implements ai.Generator.
func (p *Provider) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.responses) == 0 {
		return &ai.GenerateResponse{Provider: p.ProviderName}, nil
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	if p.errs[i] != nil {
		return nil, p.errs[i]
	}
	resp := *p.responses[i]
	resp.Provider = p.ProviderName
	return &resp, nil
}

// Calls returns the number of Generate calls.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns the recorded requests.
func (p *Provider) Requests() []*ai.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*ai.GenerateRequest(nil), p.requests...)
}

// LastRequest returns the most recent request, or nil.
func (p *Provider) LastRequest() *ai.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// CreateSession implements ai.Conversational.
func (p *Provider) CreateSession(history []analysis.ChatMessage, systemInstruction string) (ai.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &Session{
		provider:    p,
		Instruction: systemInstruction,
		Seed:        append([]analysis.ChatMessage(nil), history...),
		history:     append([]analysis.ChatMessage(nil), history...),
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Sessions returns the sessions created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Session is a scripted chat session.
type Session struct {
	provider    *Provider
	Instruction string
	Seed        []analysis.ChatMessage

	mu      sync.Mutex
	turn    int
	history []analysis.ChatMessage
}

// History implements ai.Session.
func (s *Session) History() []analysis.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analysis.ChatMessage(nil), s.history...)
}

// SendStreaming implements ai.Session.
func (s *Session) SendStreaming(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.provider.mu.Lock()
		replies, chatErr := s.provider.Replies, s.provider.ChatErr
		s.provider.mu.Unlock()

		if chatErr != nil {
			yield("", chatErr)
			return
		}

		s.mu.Lock()
		reply := "ok"
		if len(replies) > 0 {
			reply = replies[s.turn%len(replies)]
		}
		s.turn++
		s.mu.Unlock()

		words := strings.SplitAfter(reply, " ")
		for _, w := range words {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(w, nil) {
				return
			}
		}

		s.mu.Lock()
		s.history = append(s.history,
			analysis.ChatMessage{Role: analysis.RoleUser, Text: message},
			analysis.ChatMessage{Role: analysis.RoleModel, Text: reply})
		s.mu.Unlock()
	}
}
