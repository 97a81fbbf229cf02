// Package translate renders an analysis summary and its highlights in another
// language. Translations are memoized in memory.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

// ErrTranslate wraps every translation failure.
var ErrTranslate = errors.New("unable to translate the text")

// UserMessage is shown to the user when translation fails.
const UserMessage = "Sorry, I was unable to translate the text."

// Options configures the Service.
type Options struct {
	MaxEntries int64         // Memoized translations (default: 1000)
	TTL        time.Duration // Lifetime of a memoized translation (default: 1 hour)
	Model      string        // Overrides the provider's default model
}

// Service translates analysis text through the remote model.
type Service struct {
	generator ai.Generator
	memo      *ristretto.Cache[string, string]
	ttl       time.Duration
	model     string
	logger    *zap.Logger
}

// New creates a Service.
func New(generator ai.Generator, opts Options, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}

	memo, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &Service{
		generator: generator,
		memo:      memo,
		ttl:       opts.TTL,
		model:     opts.Model,
		logger:    logger.Named("translate"),
	}, nil
}

// Compose renders the summary followed by a "Key Highlights:" bullet block.
func Compose(summary string, highlights []analysis.Insight) string {
	var sb strings.Builder
	sb.WriteString(summary)
	if len(highlights) > 0 {
		sb.WriteString("\n\nKey Highlights:")
		for _, h := range highlights {
			sb.WriteString("\n- ")
			sb.WriteString(h.String())
		}
	}
	return sb.String()
}

// Translate returns summary and highlights rendered in language.
func (s *Service) Translate(ctx context.Context, summary string, highlights []analysis.Insight, language string) (string, error) {
	return s.TranslateText(ctx, Compose(summary, highlights), language)
}

// TranslateText translates arbitrary text into language.
func (s *Service) TranslateText(ctx context.Context, text, language string) (string, error) {
	language = strings.TrimSpace(language)
	if language == "" || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text and target language are required", ErrTranslate)
	}

	key := strings.ToLower(language) + "\x00" + text
	if cached, ok := s.memo.Get(key); ok {
		s.logger.Debug("Translation served from memo", zap.String("language", language))
		return cached, nil
	}

	resp, err := s.generator.Generate(ctx, &ai.GenerateRequest{
		Model: s.model,
		Parts: []ai.Part{ai.TextPart(fmt.Sprintf("Translate the following text to %s: \n\n%s", language, text))},
	})
	if err != nil {
		s.logger.Error("Translation failed", zap.String("language", language), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrTranslate, err)
	}

	s.memo.SetWithTTL(key, resp.Text, 1, s.ttl)
	return resp.Text, nil
}

// Wait blocks until pending memo writes are applied.
func (s *Service) Wait() { s.memo.Wait() }

// Close releases the memo.
func (s *Service) Close() { s.memo.Close() }
