// Package parser normalizes raw model output into the canonical analysis
// result. Two interchangeable strategies exist: Structured for JSON output and
// MarkedText for free text written in the documented section convention.
package parser

import (
	"fmt"
	"strings"

	"github.com/trust-ai-analyzer/internal/analysis"
)

// Mode selects the raw output shape requested from the model.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeMarkedText Mode = "marked"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStructured, "json", "":
		return ModeStructured, nil
	case ModeMarkedText, "text", "markup":
		return ModeMarkedText, nil
	}
	return "", fmt.Errorf("unknown parsing mode %q", s)
}

// Strategy converts raw model output into a partial canonical result. Sources,
// original content, original type, file name and FromCache are left for the
// caller to fill in.
type Strategy interface {
	Mode() Mode
	Parse(raw string, kind analysis.Kind) (*analysis.Result, error)
}

// Registry picks the strategy for each modality.
type Registry struct {
	fallback   Mode
	modes      map[analysis.Kind]Mode
	strategies map[Mode]Strategy
}

// NewRegistry creates a registry. Kinds missing from modes use fallback.
func NewRegistry(fallback Mode, modes map[analysis.Kind]Mode) *Registry {
	if fallback == "" {
		fallback = ModeStructured
	}
	r := &Registry{
		fallback: fallback,
		modes:    make(map[analysis.Kind]Mode, len(modes)),
		strategies: map[Mode]Strategy{
			ModeStructured: Structured{},
			ModeMarkedText: MarkedText{},
		},
	}
	for k, m := range modes {
		r.modes[k] = m
	}
	return r
}

// Mode returns the configured mode for kind.
func (r *Registry) Mode(kind analysis.Kind) Mode {
	if m, ok := r.modes[kind]; ok {
		return m
	}
	return r.fallback
}

// For returns the strategy for kind.
func (r *Registry) For(kind analysis.Kind) Strategy {
	return r.strategies[r.Mode(kind)]
}

// finish applies the canonical defaults shared by both strategies.
func finish(res *analysis.Result) *analysis.Result {
	if res.RiskLevel == "" {
		res.RiskLevel = analysis.RiskUnknown
	}
	if res.Insights == nil {
		res.Insights = []analysis.Insight{}
	}
	if res.CredibilityScore != nil {
		v := *res.CredibilityScore
		if v < 0 {
			v = 0
		} else if v > 100 {
			v = 100
		}
		res.CredibilityScore = &v
	}
	if len(res.KeyHighlights) == 0 {
		res.KeyHighlights = nil
	}
	if len(res.NextSuggestions) == 0 {
		res.NextSuggestions = nil
	}
	if len(res.ImageDescriptions) == 0 {
		res.ImageDescriptions = nil
	}
	return res
}
