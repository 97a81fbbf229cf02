// Package gemini is a REST client for the Gemini generateContent API.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
)

const (
	DefaultBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultAnalyzeModel = "gemini-2.5-pro"
	DefaultChatModel    = "gemini-2.5-flash"
)

// Config holds the client configuration.
type Config struct {
	APIKey         string
	BaseURL        string
	AnalyzeModel   string
	ChatModel      string
	RequestTimeout time.Duration
}

// Client talks to the Gemini REST API. It implements ai.Provider.
type Client struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New creates a client. Empty config fields take the package defaults.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AnalyzeModel == "" {
		cfg.AnalyzeModel = DefaultAnalyzeModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}

	return &Client{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("gemini"),
	}
}

// Name implements ai.Provider.
func (c *Client) Name() string { return "gemini" }

// Wire types.

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType   string             `json:"responseMimeType,omitempty"`
	ResponseJSONSchema *jsonschema.Schema `json:"responseJsonSchema,omitempty"`
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type groundingChunk struct {
	Web *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web,omitempty"`
}

type candidate struct {
	Content           content `json:"content"`
	FinishReason      string  `json:"finishReason,omitempty"`
	GroundingMetadata *struct {
		GroundingChunks []groundingChunk `json:"groundingChunks"`
	} `json:"groundingMetadata,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

// text concatenates the text parts of the first candidate.
func (r *generateContentResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (r *generateContentResponse) citations() []analysis.Source {
	if len(r.Candidates) == 0 || r.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []analysis.Source
	for _, ch := range r.Candidates[0].GroundingMetadata.GroundingChunks {
		if ch.Web == nil || ch.Web.URI == "" {
			continue
		}
		out = append(out, analysis.Source{URI: ch.Web.URI, Title: ch.Web.Title})
	}
	return out
}

func toParts(parts []ai.Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		if p.IsData() {
			out = append(out, part{InlineData: &inlineData{MIMEType: p.MIMEType, Data: p.Data}})
			continue
		}
		out = append(out, part{Text: p.Text})
	}
	return out
}

func systemContent(instruction string) *content {
	if instruction == "" {
		return nil
	}
	return &content{Parts: []part{{Text: instruction}}}
}

// buildRequest maps the neutral request onto the wire shape. The search tool
// cannot be combined with a response schema, so grounding wins.
func buildRequest(req *ai.GenerateRequest) *generateContentRequest {
	body := &generateContentRequest{
		Contents:          []content{{Role: analysis.RoleUser, Parts: toParts(req.Parts)}},
		SystemInstruction: systemContent(req.SystemInstruction),
	}
	switch {
	case req.Grounding:
		body.Tools = []tool{{GoogleSearch: &struct{}{}}}
	case req.JSON:
		body.GenerationConfig = &generationConfig{
			ResponseMIMEType:   "application/json",
			ResponseJSONSchema: req.Schema,
		}
	}
	return body
}

// Generate implements ai.Generator.
func (c *Client) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if c.config.APIKey == "" {
		return nil, ai.ErrNoAPIKey
	}
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.config.AnalyzeModel
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, model)
	respBody, err := c.post(ctx, url, buildRequest(req))
	if err != nil {
		return nil, err
	}

	var out generateContentResponse
	if err := jsonx.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("response has no candidates")
	}

	c.logger.Debug("generateContent completed",
		zap.String("model", model),
		zap.Bool("grounding", req.Grounding),
		zap.Duration("duration", time.Since(start)))

	return &ai.GenerateResponse{
		Text:      out.text(),
		Citations: out.citations(),
		Provider:  c.Name(),
		Model:     model,
		Duration:  time.Since(start),
	}, nil
}

// post sends body and returns the response body of a 200 reply.
func (c *Client) post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	resp, err := c.do(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}

func (c *Client) do(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonBody, err := jsonx.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		c.logger.Warn("Gemini API returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url))
		return nil, &ai.APIError{Provider: c.Name(), StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	return resp, nil
}

// stream posts to a streamGenerateContent endpoint and calls fn for each
// server-sent chunk.
func (c *Client) stream(ctx context.Context, model string, body interface{}, fn func(*generateContentResponse) bool) error {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.config.BaseURL, model)
	resp, err := c.do(ctx, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var chunk generateContentResponse
		if err := jsonx.UnmarshalFromString(payload, &chunk); err != nil {
			return fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		if !fn(&chunk) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}
