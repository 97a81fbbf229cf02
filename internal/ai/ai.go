// Package ai defines the provider-neutral contract for the remote generative
// model: one-shot generation for analyses and translations, and streaming chat
// sessions for follow-up conversations.
package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
)

// ErrNoAPIKey is returned by providers constructed without credentials.
var ErrNoAPIKey = errors.New("no API key configured")

// Part is one ordered piece of a model request: either text or inline binary data.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// DataPart builds an inline binary part.
func DataPart(data []byte, mimeType string) Part { return Part{Data: data, MIMEType: mimeType} }

// IsData reports whether the part carries binary data.
func (p Part) IsData() bool { return len(p.Data) > 0 }

// GenerateRequest is a single, non-conversational generation call.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Parts             []Part

	// JSON requests schema-constrained JSON output. Schema is optional.
	JSON   bool
	Schema *jsonschema.Schema

	// Grounding enables the provider's web search tool when it has one.
	Grounding bool
}

// GenerateResponse is the raw model output plus any grounding citations.
type GenerateResponse struct {
	Text      string
	Citations []analysis.Source
	Provider  string
	Model     string
	Duration  time.Duration
}

// Generator performs one-shot generation.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// Session is a stateful chat. Completed turns are appended to its history.
type Session interface {
	// SendStreaming sends message and yields text deltas. The sequence is
	// finite and can be consumed once; the exchange is recorded in History
	// only when it completes without error.
	SendStreaming(ctx context.Context, message string) iter.Seq2[string, error]
	History() []analysis.ChatMessage
}

// Conversational opens chat sessions.
type Conversational interface {
	CreateSession(history []analysis.ChatMessage, systemInstruction string) (Session, error)
}

// Provider is a model backend offering both capabilities.
type Provider interface {
	Generator
	Conversational
	Name() string
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Message returns the human-readable message of the response body.
func (e *APIError) Message() string {
	return ErrorMessage(e.Body)
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorMessage extracts error.message from a JSON error payload embedded in
// msg, falling back to msg itself. Credentials are redacted either way.
func ErrorMessage(msg string) string {
	return Redact(errorMessage(msg))
}

func errorMessage(msg string) string {
	start := strings.IndexByte(msg, '{')
	end := strings.LastIndexByte(msg, '}')
	if start < 0 || end <= start {
		return msg
	}
	var env errorEnvelope
	if err := jsonx.UnmarshalFromString(msg[start:end+1], &env); err != nil {
		return msg
	}
	if env.Error == nil || env.Error.Message == "" {
		return msg
	}
	return env.Error.Message
}

// Collect drains a streamed reply into a single string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for delta, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
	return sb.String(), nil
}
