// Package analysis holds the canonical data model shared by the fingerprinting,
// caching, parsing and orchestration layers.
package analysis

import (
	"strings"
	"time"
)

// Kind is the modality of an analysis request.
type Kind string

const (
	KindText     Kind = "text"
	KindURL      Kind = "url"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Kinds lists every supported modality.
var Kinds = []Kind{KindText, KindURL, KindImage, KindDocument}

// Valid reports whether k is a known modality.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindURL, KindImage, KindDocument:
		return true
	}
	return false
}

// Grounded reports whether the modality may use web search grounding.
func (k Kind) Grounded() bool {
	return k == KindText || k == KindURL
}

// RiskLevel is the assessed misinformation risk.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskUnknown RiskLevel = "UNKNOWN"
)

// ParseRiskLevel matches s case-insensitively against the known levels.
// Anything unrecognized resolves to RiskUnknown.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	}
	return RiskUnknown
}

// UnmarshalJSON resolves any string to a member of the enum.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := unmarshalLoose(data, &s); err != nil {
		*r = RiskUnknown
		return nil
	}
	*r = ParseRiskLevel(s)
	return nil
}

// Source is a grounding citation.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// DedupeSources drops repeated URIs, keeping the first occurrence and its title.
func DedupeSources(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		out = append(out, s)
	}
	return out
}

// GraphNode is an entity extracted from a document.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// GraphEdge is a labelled relationship between two nodes.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// GraphData is the entity and relationship graph of a document.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// TransparencyReport explains how a result was produced.
type TransparencyReport struct {
	Process     []string `json:"process"`
	Limitations []string `json:"limitations"`
	Disclaimer  string   `json:"disclaimer"`
}

// Result is the canonical analysis output. FromCache is never persisted; the
// cache recomputes it on every retrieval.
type Result struct {
	RiskLevel          RiskLevel           `json:"riskLevel"`
	Summary            string              `json:"summary"`
	Insights           []Insight           `json:"insights"`
	CredibilityScore   *float64            `json:"credibilityScore,omitempty"`
	KeyHighlights      []Insight           `json:"keyHighlights,omitempty"`
	NextSuggestions    []Insight           `json:"nextSuggestions,omitempty"`
	Tone               string              `json:"tone,omitempty"`
	Language           string              `json:"language,omitempty"`
	Sentiment          string              `json:"sentiment,omitempty"`
	Metadata           Metadata            `json:"metadata,omitempty"`
	ImageDescriptions  []string            `json:"imageDescriptions,omitempty"`
	GraphData          *GraphData          `json:"graphData,omitempty"`
	Sources            []Source            `json:"sources"`
	OriginalContent    string              `json:"originalContent"`
	OriginalType       Kind                `json:"originalType"`
	SourceFileName     string              `json:"sourceFileName,omitempty"`
	FromCache          bool                `json:"isFromCache,omitempty"`
	TransparencyReport *TransparencyReport `json:"transparencyReport,omitempty"`
}

// ChatMessage is one turn of a follow-up conversation.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Chat roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// HistoryItem is a past analysis together with its follow-up conversation.
type HistoryItem struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Result      Result        `json:"result"`
	ChatHistory []ChatMessage `json:"chatHistory"`
}
