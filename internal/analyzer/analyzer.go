// Package analyzer runs the analysis pipeline: validate, fingerprint, consult
// the cache, call the remote model on a miss, normalize, store and return.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/cache"
	"github.com/trust-ai-analyzer/internal/content"
	"github.com/trust-ai-analyzer/internal/fingerprint"
	"github.com/trust-ai-analyzer/internal/parser"
)

// Error is a failed model call or an undecodable model response. Message is
// the user-facing text.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return "Failed to analyze content. The model API returned an error: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures the Service.
type Options struct {
	// MaxDocuments bounds documents per request (default analysis.DefaultMaxDocuments).
	MaxDocuments int
	// DisableGrounding turns off web search for text and URL requests.
	DisableGrounding bool
	// RawDocumentParts sends documents without a text extractor as inline
	// binary parts instead of rejecting them.
	RawDocumentParts bool
	// Model overrides the provider's default analysis model.
	Model string
}

// Service is the analysis orchestrator.
type Service struct {
	reader    content.Reader
	generator ai.Generator
	cache     *cache.Cache
	parsers   *parser.Registry
	opts      Options
	logger    *zap.Logger
}

// New creates a Service.
func New(reader content.Reader, generator ai.Generator, c *cache.Cache, parsers *parser.Registry, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parsers == nil {
		parsers = parser.NewRegistry(parser.ModeStructured, nil)
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = analysis.DefaultMaxDocuments
	}
	return &Service{
		reader:    reader,
		generator: generator,
		cache:     c,
		parsers:   parsers,
		opts:      opts,
		logger:    logger.Named("analyzer"),
	}
}

// Analyze returns the analysis of req, from the cache when an identical
// request was analyzed before. Failed analyses are never cached.
func (s *Service) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	if err := req.Validate(s.opts.MaxDocuments); err != nil {
		return nil, err
	}

	key, err := fingerprint.ForRequest(ctx, s.reader, req)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(ctx, key); ok {
		s.logger.Debug("Serving analysis from cache", zap.String("kind", string(req.Kind)), zap.String("key", key))
		return cached, nil
	}

	start := time.Now()
	parts, err := s.buildParts(ctx, req)
	if err != nil {
		return nil, err
	}

	strategy := s.parsers.For(req.Kind)
	grounded := req.Kind.Grounded() && !s.opts.DisableGrounding

	resp, err := s.generator.Generate(ctx, &ai.GenerateRequest{
		Model:             s.opts.Model,
		SystemInstruction: systemInstruction(strategy.Mode(), req.Kind),
		Parts:             parts,
		JSON:              strategy.Mode() == parser.ModeStructured,
		Schema:            schemaFor(strategy.Mode()),
		Grounding:         grounded,
	})
	if err != nil {
		s.logger.Error("Model call failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		return nil, &Error{
			Message: ai.ErrorMessage(err.Error()),
			Err:     fmt.Errorf("%w: %w", analysis.ErrRemoteCall, err),
		}
	}

	result, err := strategy.Parse(resp.Text, req.Kind)
	if err != nil {
		s.logger.Error("Model output could not be decoded",
			zap.String("kind", string(req.Kind)),
			zap.String("mode", string(strategy.Mode())),
			zap.Error(err))
		return nil, &Error{Message: err.Error(), Err: err}
	}

	result.Sources = analysis.DedupeSources(resp.Citations)
	result.OriginalContent = req.Text
	result.OriginalType = req.Kind
	result.SourceFileName = req.FileNames()
	result.FromCache = false
	result.TransparencyReport = transparencyReport(req.Kind, strategy.Mode(), grounded)

	if err := s.cache.Put(ctx, key, result); err != nil {
		s.logger.Warn("Failed to store analysis in cache", zap.String("key", key), zap.Error(err))
	}

	s.logger.Info("Analysis completed",
		zap.String("kind", string(req.Kind)),
		zap.String("risk", string(result.RiskLevel)),
		zap.Int("sources", len(result.Sources)),
		zap.String("provider", resp.Provider),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

func schemaFor(mode parser.Mode) *jsonschema.Schema {
	if mode != parser.ModeStructured {
		return nil
	}
	return parser.ResponseSchema()
}

// buildParts assembles the modality-specific request parts.
func (s *Service) buildParts(ctx context.Context, req analysis.Request) ([]ai.Part, error) {
	switch req.Kind {
	case analysis.KindText:
		return []ai.Part{ai.TextPart(textPrompt(req.Text))}, nil
	case analysis.KindURL:
		return []ai.Part{ai.TextPart(urlPrompt(req.Text))}, nil
	case analysis.KindImage:
		data, err := s.reader.Bytes(ctx, req.Files[0])
		if err != nil {
			return nil, err
		}
		return []ai.Part{
			ai.TextPart(imagePrompt(req.Text)),
			ai.DataPart(data, req.Files[0].MIMEType()),
		}, nil
	case analysis.KindDocument:
		return s.documentParts(ctx, req.Files)
	}
	return nil, fmt.Errorf("%w: unsupported kind %q", analysis.ErrInvalidRequest, req.Kind)
}

// documentParts joins extracted document text into one prompt. Documents
// without an extractor follow as inline parts when RawDocumentParts is set.
func (s *Service) documentParts(ctx context.Context, files []content.File) ([]ai.Part, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString(documentPromptPrefix)
	var raw []ai.Part
	written := 0
	for _, f := range files {
		text, err := s.reader.Text(ctx, f)
		if err != nil {
			if !s.opts.RawDocumentParts || !errors.Is(err, content.ErrUnsupportedDocument) {
				return nil, fmt.Errorf("extract %s: %w", f.Name(), err)
			}
			data, err := s.reader.Bytes(ctx, f)
			if err != nil {
				return nil, err
			}
			raw = append(raw, ai.DataPart(data, f.MIMEType()))
			continue
		}
		if written > 0 {
			_, _ = buf.WriteString(documentSeparator)
		}
		_, _ = buf.WriteString(text)
		written++
	}

	return append([]ai.Part{ai.TextPart(buf.String())}, raw...), nil
}
