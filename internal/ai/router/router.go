// Package router selects the model provider used for analyses and chats.
// Supports Gemini (with web search grounding) and OpenAI.
package router

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/ai/gemini"
	"github.com/trust-ai-analyzer/internal/ai/openai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

// Provider names a model backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// Config holds the router configuration.
type Config struct {
	GeminiKey     string
	OpenAIKey     string
	GeminiBaseURL string
	OpenAIBaseURL string

	AnalyzeModel string
	ChatModel    string

	// Default provider to use. Empty picks the first provider with a key.
	DefaultProvider Provider

	RequestTimeout time.Duration
}

// DefaultConfig returns configuration from environment variables.
func DefaultConfig() *Config {
	cfg := &Config{
		GeminiKey:      firstEnv("GEMINI_API_KEY", "API_KEY"),
		OpenAIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RequestTimeout: 180 * time.Second,
	}
	if p := os.Getenv("TRUSTAI_PROVIDER"); p != "" {
		cfg.DefaultProvider = Provider(strings.ToLower(p))
	}
	return cfg
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Router routes generation and chat calls to the active provider. It
// implements ai.Provider.
type Router struct {
	logger *zap.Logger
	mu     sync.RWMutex

	providers       map[Provider]ai.Provider
	defaultProvider Provider
}

// New creates a router with a provider for every configured key.
func New(cfg *Config, logger *zap.Logger) (*Router, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		logger:    logger.Named("router"),
		providers: make(map[Provider]ai.Provider),
	}
	if cfg.GeminiKey != "" {
		r.providers[ProviderGemini] = gemini.New(gemini.Config{
			APIKey:         cfg.GeminiKey,
			BaseURL:        cfg.GeminiBaseURL,
			AnalyzeModel:   cfg.AnalyzeModel,
			ChatModel:      cfg.ChatModel,
			RequestTimeout: cfg.RequestTimeout,
		}, logger)
	}
	if cfg.OpenAIKey != "" {
		r.providers[ProviderOpenAI] = openai.New(openai.Config{
			APIKey:       cfg.OpenAIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			AnalyzeModel: cfg.AnalyzeModel,
			ChatModel:    cfg.ChatModel,
		}, logger)
	}
	return r, r.selectDefault(cfg.DefaultProvider)
}

// NewWithProviders creates a router over pre-built providers.
func NewWithProviders(def Provider, providers map[Provider]ai.Provider, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{logger: logger.Named("router"), providers: make(map[Provider]ai.Provider, len(providers))}
	for name, p := range providers {
		r.providers[name] = p
	}
	return r, r.selectDefault(def)
}

func (r *Router) selectDefault(want Provider) error {
	if want != "" {
		if _, ok := r.providers[want]; !ok {
			return fmt.Errorf("provider %s is not configured", want)
		}
		r.defaultProvider = want
		return nil
	}
	for _, p := range []Provider{ProviderGemini, ProviderOpenAI} {
		if _, ok := r.providers[p]; ok {
			r.defaultProvider = p
			return nil
		}
	}
	return fmt.Errorf("no model provider configured: %w", ai.ErrNoAPIKey)
}

func (r *Router) active() (Provider, ai.Provider) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider, r.providers[r.defaultProvider]
}

// Name implements ai.Provider.
func (r *Router) Name() string {
	name, _ := r.active()
	return string(name)
}

// Generate implements ai.Generator.
func (r *Router) Generate(ctx context.Context, req *ai.GenerateRequest) (*ai.GenerateResponse, error) {
	name, p := r.active()
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %s failed: %w", name, err)
	}
	return resp, nil
}

// CreateSession implements ai.Conversational.
func (r *Router) CreateSession(history []analysis.ChatMessage, systemInstruction string) (ai.Session, error) {
	name, p := r.active()
	s, err := p.CreateSession(history, systemInstruction)
	if err != nil {
		return nil, fmt.Errorf("provider %s failed: %w", name, err)
	}
	return s, nil
}

// GetProviders returns the configured providers in name order.
func (r *Router) GetProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// GetDefaultProvider returns the active provider.
func (r *Router) GetDefaultProvider() Provider {
	name, _ := r.active()
	return name
}

// SetDefaultProvider switches the active provider.
func (r *Router) SetDefaultProvider(provider Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[provider]; !ok {
		return fmt.Errorf("provider %s is not available", provider)
	}
	r.logger.Info("Switching model provider", zap.String("provider", string(provider)))
	r.defaultProvider = provider
	return nil
}

// IsProviderAvailable checks if a provider is configured.
func (r *Router) IsProviderAvailable(provider Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[provider]
	return ok
}

// ParseProvider parses a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGemini, ProviderOpenAI:
		return p, nil
	}
	return "", fmt.Errorf("invalid provider: %s", s)
}
