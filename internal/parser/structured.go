package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
)

// Structured parses a single JSON object matching the analysis schema. A
// surrounding fenced code block is tolerated; anything that still fails to
// decode is an error wrapping analysis.ErrDecode.
type Structured struct{}

// Mode implements Strategy.
func (Structured) Mode() Mode { return ModeStructured }

// Payload is the JSON object the model is asked to produce. Metadata is
// declared as a string in the schema and decoded a second time.
type Payload struct {
	RiskLevel         analysis.RiskLevel  `json:"riskLevel"`
	Summary           string              `json:"summary"`
	Insights          insightList         `json:"insights"`
	CredibilityScore  *flexNumber         `json:"credibilityScore,omitempty"`
	KeyHighlights     insightList         `json:"keyHighlights,omitempty"`
	NextSuggestions   insightList         `json:"nextSuggestions,omitempty"`
	Tone              string              `json:"tone,omitempty"`
	Language          string              `json:"language,omitempty"`
	Sentiment         string              `json:"sentiment,omitempty"`
	GraphData         *analysis.GraphData `json:"graphData,omitempty"`
	ImageDescriptions stringList          `json:"imageDescriptions,omitempty"`
	Metadata          analysis.Metadata   `json:"metadata,omitempty"`
}

// Parse implements Strategy.
func (Structured) Parse(raw string, _ analysis.Kind) (*analysis.Result, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", analysis.ErrDecode)
	}

	var p Payload
	err := jsonx.UnmarshalFromString(body, &p)
	if err != nil {
		obj, ok := outerObject(body)
		if !ok {
			return nil, fmt.Errorf("%w: %v", analysis.ErrDecode, err)
		}
		p = Payload{}
		if err2 := jsonx.UnmarshalFromString(obj, &p); err2 != nil {
			return nil, fmt.Errorf("%w: %v", analysis.ErrDecode, err2)
		}
	}

	res := &analysis.Result{
		RiskLevel:         p.RiskLevel,
		Summary:           strings.TrimSpace(p.Summary),
		Insights:          []analysis.Insight(p.Insights),
		KeyHighlights:     []analysis.Insight(p.KeyHighlights),
		NextSuggestions:   []analysis.Insight(p.NextSuggestions),
		Tone:              p.Tone,
		Language:          p.Language,
		Sentiment:         p.Sentiment,
		GraphData:         p.GraphData,
		ImageDescriptions: []string(p.ImageDescriptions),
		Metadata:          p.Metadata,
	}
	if p.CredibilityScore != nil && p.CredibilityScore.set {
		v := p.CredibilityScore.value
		res.CredibilityScore = &v
	}
	return finish(res), nil
}

// insightList accepts an array of insights or a single insight.
type insightList []analysis.Insight

func (l *insightList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var items []analysis.Insight
		if err := jsonx.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var one analysis.Insight
	if err := jsonx.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*l = insightList{one}
	return nil
}

// stringList accepts an array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var items []string
		if err := jsonx.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var one string
	if err := jsonx.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*l = stringList{one}
	return nil
}

// flexNumber accepts a number or a numeric string such as "85" or "85%".
// Anything else leaves it unset.
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := jsonx.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			n.value, n.set = v, true
		}
		return nil
	}
	if v, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
		n.value, n.set = v, true
	}
	return nil
}
