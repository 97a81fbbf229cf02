package parser

import (
	"sync"

	"github.com/invopop/jsonschema"
)

// SchemaDocument describes the JSON object requested in structured mode. It
// mirrors Payload with plain types so the reflected schema stays simple for
// the model; metadata travels as a JSON-encoded string.
type SchemaDocument struct {
	RiskLevel         string       `json:"riskLevel" jsonschema:"enum=LOW,enum=MEDIUM,enum=HIGH,enum=UNKNOWN"`
	Summary           string       `json:"summary"`
	Insights          []string     `json:"insights"`
	CredibilityScore  float64      `json:"credibilityScore,omitempty" jsonschema:"minimum=0,maximum=100"`
	KeyHighlights     []string     `json:"keyHighlights,omitempty"`
	NextSuggestions   []string     `json:"nextSuggestions,omitempty"`
	Tone              string       `json:"tone,omitempty"`
	Language          string       `json:"language,omitempty"`
	Sentiment         string       `json:"sentiment,omitempty"`
	GraphData         *schemaGraph `json:"graphData,omitempty"`
	ImageDescriptions []string     `json:"imageDescriptions,omitempty"`
	Metadata          string       `json:"metadata,omitempty"`
}

type schemaGraph struct {
	Nodes []schemaNode `json:"nodes"`
	Edges []schemaEdge `json:"edges"`
}

type schemaNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type schemaEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// ResponseSchema returns the JSON schema of SchemaDocument.
func ResponseSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		r := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema = r.Reflect(&SchemaDocument{})
		schema.Version = ""
		schema.ID = ""
	})
	return schema
}
