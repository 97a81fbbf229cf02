// Package openai adapts the OpenAI chat completions API to the ai contract.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

const (
	DefaultAnalyzeModel = "gpt-4o"
	DefaultChatModel    = "gpt-4o-mini"
)

// Config holds the client configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	AnalyzeModel string
	ChatModel    string
}

// Client implements ai.Provider on top of go-openai.
type Client struct {
	api          *openai.Client
	hasKey       bool
	analyzeModel string
	chatModel    string
	logger       *zap.Logger
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.AnalyzeModel == "" {
		cfg.AnalyzeModel = DefaultAnalyzeModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	return &Client{
		api:          openai.NewClientWithConfig(oc),
		hasKey:       cfg.APIKey != "",
		analyzeModel: cfg.AnalyzeModel,
		chatModel:    cfg.ChatModel,
		logger:       logger.Named("openai"),
	}
}

// Name implements ai.Provider.
func (c *Client) Name() string { return "openai" }

func userMessage(parts []ai.Part) openai.ChatCompletionMessage {
	hasData := false
	for _, p := range parts {
		if p.IsData() {
			hasData = true
			break
		}
	}
	if !hasData {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Text)
		}
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: strings.Join(texts, "\n\n")}
	}

	multi := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.IsData() {
			url := "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
			multi = append(multi, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
			continue
		}
		multi = append(multi, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: multi}
}

// buildRequest maps the neutral request to a chat completion. OpenAI chat has
// no search tool, so Grounding is ignored.
func (c *Client) buildRequest(req *ai.GenerateRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.analyzeModel
	}
	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction})
	}
	messages = append(messages, userMessage(req.Parts))

	out := openai.ChatCompletionRequest{Model: model, Messages: messages}
	if req.JSON {
		if req.Schema != nil {
			out.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   "analysis_result",
					Schema: req.Schema,
				},
			}
		} else {
			out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		}
	}
	return out
}

// Generate implements ai.Generator.
func (c *Client) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if !c.hasKey {
		return nil, ai.ErrNoAPIKey
	}
	start := time.Now()
	if req.Grounding {
		c.logger.Debug("grounding requested but not supported; continuing without web search")
	}

	creq := c.buildRequest(req)
	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	return &ai.GenerateResponse{
		Text:     resp.Choices[0].Message.Content,
		Provider: c.Name(),
		Model:    creq.Model,
		Duration: time.Since(start),
	}, nil
}

func (c *Client) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Warn("OpenAI API returned an error", zap.Int("status", apiErr.HTTPStatusCode))
		return &ai.APIError{Provider: c.Name(), StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	return fmt.Errorf("request failed: %w", err)
}

// Session is an OpenAI chat session.
type Session struct {
	client      *Client
	instruction string

	mu      sync.Mutex
	history []analysis.ChatMessage
}

// CreateSession implements ai.Conversational.
func (c *Client) CreateSession(history []analysis.ChatMessage, systemInstruction string) (ai.Session, error) {
	if !c.hasKey {
		return nil, ai.ErrNoAPIKey
	}
	return &Session{
		client:      c,
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

func role(r string) string {
	if r == analysis.RoleModel {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// SendStreaming implements ai.Session.
func (s *Session) SendStreaming(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var messages []openai.ChatCompletionMessage
		if s.instruction != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s.instruction})
		}
		for _, m := range s.History() {
			messages = append(messages, openai.ChatCompletionMessage{Role: role(m.Role), Content: m.Text})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

		stream, err := s.client.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    s.client.chatModel,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			yield("", s.client.wrap(err))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", s.client.wrap(err))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			reply.WriteString(delta)
			if !yield(delta, nil) {
				return
			}
		}

		s.mu.Lock()
		s.history = append(s.history,
			analysis.ChatMessage{Role: analysis.RoleUser, Text: message},
			analysis.ChatMessage{Role: analysis.RoleModel, Text: reply.String()})
		s.mu.Unlock()
	}
}
