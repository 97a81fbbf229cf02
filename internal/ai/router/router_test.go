package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/ai/aitest"
)

func TestNewSelectsConfiguredProvider(t *testing.T) {
	r, err := New(&Config{OpenAIKey: "sk"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, r.GetDefaultProvider())
	assert.Equal(t, []Provider{ProviderOpenAI}, r.GetProviders())

	r, err = New(&Config{GeminiKey: "g", OpenAIKey: "sk"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, r.GetDefaultProvider())
	assert.Equal(t, []Provider{ProviderGemini, ProviderOpenAI}, r.GetProviders())
}

func TestNewWithoutKeys(t *testing.T) {
	_, err := New(&Config{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ai.ErrNoAPIKey)

	_, err = New(&Config{GeminiKey: "g", DefaultProvider: ProviderOpenAI}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRoutesToActiveProvider(t *testing.T) {
	g := aitest.New("from gemini")
	o := aitest.New("from openai")
	r, err := NewWithProviders(ProviderGemini, map[Provider]ai.Provider{ProviderGemini: g, ProviderOpenAI: o}, zaptest.NewLogger(t))
	require.NoError(t, err)

	resp, err := r.Generate(context.Background(), &ai.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", resp.Text)

	require.NoError(t, r.SetDefaultProvider(ProviderOpenAI))
	resp, err = r.Generate(context.Background(), &ai.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from openai", resp.Text)
	assert.Equal(t, 1, g.Calls())
	assert.Equal(t, 1, o.Calls())

	_, err = r.CreateSession(nil, "sys")
	require.NoError(t, err)
	assert.Len(t, o.Sessions(), 1)
}

func TestGenerateWrapsProviderError(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewWithProviders("", map[Provider]ai.Provider{ProviderOpenAI: aitest.New().Fail(boom)}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), &ai.GenerateRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "provider openai failed")
}

func TestSetDefaultProviderRejectsUnknown(t *testing.T) {
	r, err := NewWithProviders("", map[Provider]ai.Provider{ProviderGemini: aitest.New()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Error(t, r.SetDefaultProvider(ProviderOpenAI))
	assert.True(t, r.IsProviderAvailable(ProviderGemini))
	assert.False(t, r.IsProviderAvailable(ProviderOpenAI))
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Gemini ")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p)

	_, err = ParseProvider("ollama")
	assert.Error(t, err)
}
