package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-ai-analyzer/internal/analysis"
)

func TestMarkedTextParse(t *testing.T) {
	raw := "Risk Level: HIGH\nSummary: Claim lacks evidence.\nDetailed Analysis:\n- No credible citation found.\n- Contradicts WHO guidance."

	res, err := MarkedText{}.Parse(raw, analysis.KindText)
	require.NoError(t, err)

	assert.Equal(t, analysis.RiskHigh, res.RiskLevel)
	assert.Equal(t, "Claim lacks evidence.", res.Summary)
	assert.Equal(t, analysis.TextInsights("No credible citation found.", "Contradicts WHO guidance."), res.Insights)
	assert.Nil(t, res.CredibilityScore)
}

func TestMarkedTextHeaderVariants(t *testing.T) {
	raw := "## **Risk Level:** low\n\n**Summary**\nFirst line.\nSecond line.\n\n### Key Insights\n* one\n  continued here\n• two\n\nCredibility Score: 72/100"

	res, err := MarkedText{}.Parse(raw, analysis.KindURL)
	require.NoError(t, err)

	assert.Equal(t, analysis.RiskLow, res.RiskLevel)
	assert.Equal(t, "First line.\nSecond line.", res.Summary)
	assert.Equal(t, analysis.TextInsights("one continued here", "two"), res.Insights)
	require.NotNil(t, res.CredibilityScore)
	assert.Equal(t, 72.0, *res.CredibilityScore)
}

func TestMarkedTextUnknownRisk(t *testing.T) {
	res, err := MarkedText{}.Parse("Risk Level: BOGUS\nSummary: s", analysis.KindText)
	require.NoError(t, err)
	assert.Equal(t, analysis.RiskUnknown, res.RiskLevel)
	assert.NotNil(t, res.Insights)
	assert.Empty(t, res.Insights)
}

func TestMarkedTextWithoutSections(t *testing.T) {
	res, err := MarkedText{}.Parse("The claim seems off.\n\nNo sources back it.", analysis.KindText)
	require.NoError(t, err)

	assert.Equal(t, analysis.RiskUnknown, res.RiskLevel)
	assert.Equal(t, UnstructuredSummary, res.Summary)
	assert.Equal(t, analysis.TextInsights("The claim seems off.", "No sources back it."), res.Insights)
}

func TestMarkedTextDocumentSections(t *testing.T) {
	raw := `Risk Level: MEDIUM
Summary: Quarterly report with one unsupported figure.
Key Highlights:
- Revenue up 4%
Metadata:
- Author: Jane Doe
- Pages: 12
Image Analysis:
- Bar chart of revenue by quarter
Entity & Relationship Graph:
` + "```json" + `
{"nodes":[{"id":"acme","label":"Acme","type":"organization"},{"id":"jane","label":"Jane Doe","type":"person"}],
 "edges":[{"source":"jane","target":"acme","label":"works for"}]}
` + "```" + `
Follow-up Suggestions:
- Where does the 4% figure come from?
- Who audited the report?
Tone Analysis:
- Tone: Formal
- Language: English
- Sentiment: Neutral`

	res, err := MarkedText{}.Parse(raw, analysis.KindDocument)
	require.NoError(t, err)

	assert.Equal(t, analysis.RiskMedium, res.RiskLevel)
	assert.Equal(t, analysis.TextInsights("Revenue up 4%"), res.KeyHighlights)
	assert.Equal(t, analysis.Metadata{"Author": "Jane Doe", "Pages": "12"}, res.Metadata)
	assert.Equal(t, []string{"Bar chart of revenue by quarter"}, res.ImageDescriptions)
	require.NotNil(t, res.GraphData)
	assert.Len(t, res.GraphData.Nodes, 2)
	assert.Equal(t, "works for", res.GraphData.Edges[0].Label)
	assert.Len(t, res.NextSuggestions, 2)
	assert.Equal(t, "Formal", res.Tone)
	assert.Equal(t, "English", res.Language)
	assert.Equal(t, "Neutral", res.Sentiment)
}

func TestMarkedTextMetadataJSON(t *testing.T) {
	res, err := MarkedText{}.Parse("Summary: s\nMetadata:\n{\"title\": \"Report\"}", analysis.KindDocument)
	require.NoError(t, err)
	assert.Equal(t, analysis.Metadata{"title": "Report"}, res.Metadata)

	res, err = MarkedText{}.Parse("Summary: s\nMetadata:\nnothing useful here", analysis.KindDocument)
	require.NoError(t, err)
	assert.Equal(t, analysis.Metadata{analysis.RawMetadataKey: "nothing useful here"}, res.Metadata)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry("", map[analysis.Kind]Mode{analysis.KindDocument: ModeMarkedText})

	assert.Equal(t, ModeStructured, r.Mode(analysis.KindText))
	assert.Equal(t, ModeMarkedText, r.Mode(analysis.KindDocument))
	assert.IsType(t, Structured{}, r.For(analysis.KindImage))
	assert.IsType(t, MarkedText{}, r.For(analysis.KindDocument))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeStructured, "JSON": ModeStructured, "marked": ModeMarkedText, "text": ModeMarkedText} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("xml")
	assert.Error(t, err)
}
