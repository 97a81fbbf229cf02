package parser

import (
	"bufio"
	"strconv"
	"strings"
	"unicode"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/jsonx"
)

// UnstructuredSummary is shown when marked-text output has no recognizable
// sections and every line is surfaced as an insight instead.
const UnstructuredSummary = "The model's response did not follow the expected format. Its observations are listed below as-is."

// MarkedText parses free text that uses the section convention:
//
//	Risk Level: HIGH
//	Summary: ...
//	Detailed Analysis:
//	- insight
//
// plus, for documents, Metadata, Image Analysis, Entity & Relationship Graph,
// Follow-up Suggestions and Tone Analysis sections. Headers may carry a
// leading "#" marker or "**" emphasis and match case-insensitively by prefix.
// It never fails: missing sections keep their defaults.
type MarkedText struct{}

// Mode implements Strategy.
func (MarkedText) Mode() Mode { return ModeMarkedText }

type section int

const (
	sectionNone section = iota
	sectionRisk
	sectionSummary
	sectionInsights
	sectionHighlights
	sectionCredibility
	sectionMetadata
	sectionImages
	sectionGraph
	sectionSuggestions
	sectionTone
)

// sectionHeaders is checked in order, so longer names precede their prefixes.
var sectionHeaders = []struct {
	name    string
	section section
}{
	{"risk level", sectionRisk},
	{"summary", sectionSummary},
	{"detailed analysis", sectionInsights},
	{"detailed insights", sectionInsights},
	{"key insights", sectionInsights},
	{"insights", sectionInsights},
	{"key highlights", sectionHighlights},
	{"credibility score", sectionCredibility},
	{"metadata", sectionMetadata},
	{"image analysis", sectionImages},
	{"image descriptions", sectionImages},
	{"entity & relationship graph", sectionGraph},
	{"entity and relationship graph", sectionGraph},
	{"follow-up suggestions", sectionSuggestions},
	{"follow up suggestions", sectionSuggestions},
	{"next suggestions", sectionSuggestions},
	{"tone analysis", sectionTone},
}

// matchHeader reports whether line is a section header and returns the text
// following the header's colon.
func matchHeader(line string) (section, string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "**")
	lower := strings.ToLower(s)

	for _, h := range sectionHeaders {
		if !strings.HasPrefix(lower, h.name) {
			continue
		}
		rest := strings.TrimSpace(s[len(h.name):])
		rest = strings.TrimPrefix(rest, "**")
		rest = strings.TrimSpace(rest)
		switch {
		case rest == "":
			return h.section, "", true
		case strings.HasPrefix(rest, ":"):
			inline := strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			inline = strings.TrimSpace(strings.TrimPrefix(inline, "**"))
			return h.section, inline, true
		}
	}
	return sectionNone, "", false
}

// bulletText strips a "- ", "* " or "• " marker.
func bulletText(line string) (string, bool) {
	s := strings.TrimSpace(line)
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, marker) {
			return strings.TrimSpace(s[len(marker):]), true
		}
	}
	return s, false
}

// Parse implements Strategy.
func (MarkedText) Parse(raw string, _ analysis.Kind) (*analysis.Result, error) {
	sections := make(map[section][]string)
	var order []string
	current := sectionNone
	recognized := false

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		order = append(order, line)

		if sec, inline, ok := matchHeader(line); ok {
			recognized = true
			current = sec
			if inline != "" {
				sections[sec] = append(sections[sec], inline)
			}
			continue
		}
		if current != sectionNone {
			sections[current] = append(sections[current], line)
		}
	}

	if !recognized {
		return finish(unstructured(order)), nil
	}

	res := &analysis.Result{
		RiskLevel:         parseRisk(sections[sectionRisk]),
		Summary:           joinBlock(sections[sectionSummary]),
		Insights:          bullets(sections[sectionInsights]),
		KeyHighlights:     bullets(sections[sectionHighlights]),
		NextSuggestions:   bullets(sections[sectionSuggestions]),
		ImageDescriptions: plainBullets(sections[sectionImages]),
		Metadata:          parseMetadata(sections[sectionMetadata]),
		GraphData:         parseGraph(sections[sectionGraph]),
		CredibilityScore:  parseScore(sections[sectionCredibility]),
	}
	res.Tone, res.Language, res.Sentiment = parseTone(sections[sectionTone])
	return finish(res), nil
}

func unstructured(lines []string) *analysis.Result {
	res := &analysis.Result{
		RiskLevel: analysis.RiskUnknown,
		Summary:   UnstructuredSummary,
	}
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			res.Insights = append(res.Insights, analysis.TextInsight(t))
		}
	}
	return res
}

func parseRisk(lines []string) analysis.RiskLevel {
	for _, l := range lines {
		word := strings.FieldsFunc(l, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(word) > 0 {
			return analysis.ParseRiskLevel(word[0])
		}
	}
	return analysis.RiskUnknown
}

func joinBlock(lines []string) string {
	var kept []string
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n")
}

// bullets turns bullet lines into insights. A non-bullet line continues the
// previous bullet, or stands alone when there is none.
func bullets(lines []string) []analysis.Insight {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		text, isBullet := bulletText(l)
		if !isBullet && len(out) > 0 {
			out[len(out)-1] += " " + text
			continue
		}
		if text != "" {
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return analysis.TextInsights(out...)
}

func plainBullets(lines []string) []string {
	items := bullets(lines)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.String()
	}
	return out
}

func parseScore(lines []string) *float64 {
	for _, l := range lines {
		fields := strings.FieldsFunc(l, func(r rune) bool { return !(unicode.IsDigit(r) || r == '.') })
		for _, f := range fields {
			if v, err := strconv.ParseFloat(strings.Trim(f, "."), 64); err == nil {
				return &v
			}
		}
	}
	return nil
}

// parseMetadata reads either an embedded JSON object or "key: value" lines.
func parseMetadata(lines []string) analysis.Metadata {
	block := strings.TrimSpace(strings.Join(lines, "\n"))
	if block == "" {
		return nil
	}
	body := StripCodeFence(block)
	if strings.HasPrefix(body, "{") {
		return analysis.DecodeMetadata(body)
	}

	md := analysis.Metadata{}
	for _, l := range lines {
		text, _ := bulletText(l)
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), "*")
		if key == "" {
			continue
		}
		md[key] = strings.TrimSpace(value)
	}
	if len(md) == 0 {
		return analysis.Metadata{analysis.RawMetadataKey: block}
	}
	return md
}

func parseGraph(lines []string) *analysis.GraphData {
	block := strings.TrimSpace(strings.Join(lines, "\n"))
	if block == "" {
		return nil
	}
	body, ok := outerObject(StripCodeFence(block))
	if !ok {
		return nil
	}
	var g analysis.GraphData
	if err := jsonx.UnmarshalFromString(body, &g); err != nil {
		return nil
	}
	if len(g.Nodes) == 0 && len(g.Edges) == 0 {
		return nil
	}
	return &g
}

// parseTone reads "Tone:", "Language:" and "Sentiment:" lines. A line without
// a recognized label becomes the tone when none was labelled.
func parseTone(lines []string) (tone, language, sentiment string) {
	var loose []string
	for _, l := range lines {
		text, _ := bulletText(l)
		if text == "" {
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		label := strings.ToLower(strings.Trim(strings.TrimSpace(key), "*"))
		switch {
		case ok && label == "tone":
			tone = strings.TrimSpace(value)
		case ok && label == "language":
			language = strings.TrimSpace(value)
		case ok && label == "sentiment":
			sentiment = strings.TrimSpace(value)
		default:
			loose = append(loose, text)
		}
	}
	if tone == "" && len(loose) > 0 {
		tone = strings.Join(loose, " ")
	}
	return tone, language, sentiment
}
