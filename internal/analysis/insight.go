package analysis

import (
	"bytes"
	"fmt"

	"github.com/trust-ai-analyzer/internal/jsonx"
)

func unmarshalLoose(data []byte, v interface{}) error {
	return jsonx.Unmarshal(data, v)
}

// InsightForm tags the shape an insight arrived in.
type InsightForm int

const (
	// InsightText is a bare string.
	InsightText InsightForm = iota
	// InsightStructured is an object with a suggestion/title and optional detail/description.
	InsightStructured
	// InsightRaw is any other JSON value, kept verbatim.
	InsightRaw
)

// Insight is an observation produced by the model. Models return either a
// plain string or an object, so the shape is kept as a tagged union.
type Insight struct {
	Form       InsightForm
	Text       string
	Suggestion string
	Detail     string
	Raw        []byte
}

// TextInsight builds a bare-string insight.
func TextInsight(s string) Insight {
	return Insight{Form: InsightText, Text: s}
}

// StructuredInsight builds an object insight.
func StructuredInsight(suggestion, detail string) Insight {
	return Insight{Form: InsightStructured, Suggestion: suggestion, Detail: detail}
}

// TextInsights wraps each string as a bare-string insight.
func TextInsights(items ...string) []Insight {
	out := make([]Insight, len(items))
	for i, s := range items {
		out[i] = TextInsight(s)
	}
	return out
}

// String renders the insight for display and for chat context.
func (in Insight) String() string {
	switch in.Form {
	case InsightText:
		return in.Text
	case InsightStructured:
		if in.Suggestion != "" && in.Detail != "" {
			return fmt.Sprintf("%s: %s", in.Suggestion, in.Detail)
		}
		if in.Suggestion != "" {
			return in.Suggestion
		}
		b, _ := jsonx.Marshal(in.objectForm())
		return string(b)
	case InsightRaw:
		return string(in.Raw)
	default:
		return ""
	}
}

type insightObject struct {
	Suggestion  string `json:"suggestion,omitempty"`
	Title       string `json:"title,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Description string `json:"description,omitempty"`
}

func (in Insight) objectForm() insightObject {
	return insightObject{Suggestion: in.Suggestion, Detail: in.Detail}
}

// UnmarshalJSON accepts a string, an object or anything else.
func (in *Insight) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*in = Insight{Form: InsightRaw, Raw: []byte("null")}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := jsonx.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*in = TextInsight(s)
		return nil
	case '{':
		var obj insightObject
		if err := jsonx.Unmarshal(trimmed, &obj); err == nil {
			suggestion := firstNonEmpty(obj.Suggestion, obj.Title)
			if suggestion != "" {
				*in = StructuredInsight(suggestion, firstNonEmpty(obj.Detail, obj.Description))
				return nil
			}
		}
	}

	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)
	*in = Insight{Form: InsightRaw, Raw: raw}
	return nil
}

// MarshalJSON writes the insight back in the shape it arrived in.
func (in Insight) MarshalJSON() ([]byte, error) {
	switch in.Form {
	case InsightStructured:
		return jsonx.Marshal(in.objectForm())
	case InsightRaw:
		if len(in.Raw) == 0 || !jsonx.Valid(in.Raw) {
			return []byte("null"), nil
		}
		return in.Raw, nil
	default:
		return jsonx.Marshal(in.Text)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
