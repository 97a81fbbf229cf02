package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
	"github.com/trust-ai-analyzer/internal/parser"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, jsonx.Unmarshal(data, &body))
	return body
}

func TestGenerateGrounded(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+DefaultAnalyzeModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body = decodeBody(t, r)
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Risk Level: LOW"},{"text":"\nSummary: ok"}]},
			"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://a","title":"A"}},{"retrievedContext":{}},{"web":{"uri":"https://b","title":"B"}}]}}]}`)
	})

	resp, err := c.Generate(context.Background(), &ai.GenerateRequest{
		SystemInstruction: "be an analyst",
		Parts:             []ai.Part{ai.TextPart("check this")},
		JSON:              true,
		Schema:            parser.ResponseSchema(),
		Grounding:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Risk Level: LOW\nSummary: ok", resp.Text)
	assert.Equal(t, []analysis.Source{{URI: "https://a", Title: "A"}, {URI: "https://b", Title: "B"}}, resp.Citations)
	assert.Equal(t, "gemini", resp.Provider)

	assert.Contains(t, body, "tools")
	assert.NotContains(t, body, "generationConfig")
	sys := body["systemInstruction"].(map[string]interface{})
	assert.Equal(t, "be an analyst", sys["parts"].([]interface{})[0].(map[string]interface{})["text"])
}

func TestGenerateStructuredWithInlineData(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body = decodeBody(t, r)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"riskLevel\":\"LOW\"}"}]}}]}`)
	})

	resp, err := c.Generate(context.Background(), &ai.GenerateRequest{
		Parts:  []ai.Part{ai.TextPart("describe"), ai.DataPart([]byte("PNGDATA"), "image/png")},
		JSON:   true,
		Schema: parser.ResponseSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"riskLevel":"LOW"}`, resp.Text)
	assert.Empty(t, resp.Citations)

	assert.NotContains(t, body, "tools")
	cfg := body["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", cfg["responseMimeType"])
	assert.Contains(t, cfg, "responseJsonSchema")

	parts := body["contents"].([]interface{})[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 2)
	inline := parts[1].(map[string]interface{})["inlineData"].(map[string]interface{})
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, "UE5HREFUQQ==", inline["data"])
}

func TestGenerateAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := c.Generate(context.Background(), &ai.GenerateRequest{Parts: []ai.Part{ai.TextPart("x")}})
	require.Error(t, err)

	var apiErr *ai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "Quota exceeded", apiErr.Message())
}

func TestGenerateWithoutKey(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t))
	_, err := c.Generate(context.Background(), &ai.GenerateRequest{})
	assert.ErrorIs(t, err, ai.ErrNoAPIKey)

	_, err = c.CreateSession(nil, "")
	assert.ErrorIs(t, err, ai.ErrNoAPIKey)
}

func TestSessionStreaming(t *testing.T) {
	var turns int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+DefaultChatModel+":streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		body := decodeBody(t, r)
		turns = len(body["contents"].([]interface{}))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo", ""} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", chunk)
		}
	})

	seed := []analysis.ChatMessage{
		{Role: analysis.RoleUser, Text: "context"},
		{Role: analysis.RoleModel, Text: "understood"},
	}
	s, err := c.CreateSession(seed, "be brief")
	require.NoError(t, err)

	reply, err := ai.Collect(s.SendStreaming(context.Background(), "hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
	assert.Equal(t, 3, turns)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, analysis.ChatMessage{Role: analysis.RoleUser, Text: "hi"}, history[2])
	assert.Equal(t, analysis.ChatMessage{Role: analysis.RoleModel, Text: "Hello"}, history[3])
}

func TestSessionStreamingErrorLeavesHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"backend unavailable"}}`)
	})

	s, err := c.CreateSession(nil, "")
	require.NoError(t, err)

	_, err = ai.Collect(s.SendStreaming(context.Background(), "hi"))
	require.Error(t, err)
	assert.True(t, strings.Contains(ai.ErrorMessage(err.Error()), "backend unavailable"))
	assert.Empty(t, s.History())
}
