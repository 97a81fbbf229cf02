// Package chat opens follow-up conversations grounded in a prior analysis,
// and the general assistant conversation about the application itself.
package chat

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/ai"
	"github.com/trust-ai-analyzer/internal/analysis"
)

// Style is the markup the model must use in chat replies.
type Style string

const (
	StyleHTML     Style = "html"
	StyleMarkdown Style = "markdown"
)

// ParseStyle validates a configured style name. Empty means HTML.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleHTML, "":
		return StyleHTML, nil
	case StyleMarkdown:
		return StyleMarkdown, nil
	}
	return "", fmt.Errorf("unknown chat response style %q", s)
}

// maxSeedSuggestions bounds the next-step suggestions restated in the seed.
const maxSeedSuggestions = 2

const followUpBase = "You are a helpful follow-up assistant. The user has just received an analysis of a piece of content. Your role is to answer their questions about the analysis, help them dig deeper into the topics, and provide further clarification. Be concise and stay on topic."

const htmlFormatting = " When formatting your response, you MUST use HTML tags, not Markdown. Use <b> tags for bold text instead of asterisks (*) or hashes (#). Use <ol> with <li> tags for numbered lists instead of markdown numbers (e.g., 1.)."

const markdownFormatting = " Format your response in Markdown."

// GeneralGreeting opens the general assistant conversation.
const GeneralGreeting = "Hello! I'm the Trust AI assistant. How can I help you understand this application and its features today?"

const generalInstruction = `You are Trust AI, a personal assistant for the Trust AI application.
- Answer only the direct question asked.
- Keep your answers short and crisp.
- Use HTML <b> tags to highlight important text, not Markdown.
- Your knowledge is strictly limited to the Trust AI application's features, architecture, data handling, and AI models.
- For example, if asked about the history button, respond: "The <b>history button</b> is in the top-right corner of the header." If asked about the theme button, respond: "The <b>theme button</b> is located on the top right corner of the header, near the history and information buttons." If asked about the transparency button, respond: "The <b>transparency button</b> appears in the header after an analysis is complete."`

// FollowUpInstruction returns the system instruction for analysis chats.
func FollowUpInstruction(style Style) string {
	if style == StyleMarkdown {
		return followUpBase + markdownFormatting
	}
	return followUpBase + htmlFormatting
}

// Seeder opens chat sessions.
type Seeder struct {
	conv   ai.Conversational
	style  Style
	logger *zap.Logger
}

// NewSeeder creates a Seeder. An empty style means HTML.
func NewSeeder(conv ai.Conversational, style Style, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if style == "" {
		style = StyleHTML
	}
	return &Seeder{conv: conv, style: style, logger: logger.Named("chat")}
}

// SeedChat opens a follow-up session whose history restates result.
func (s *Seeder) SeedChat(result *analysis.Result) (ai.Session, error) {
	session, err := s.conv.CreateSession(SeedTranscript(result), FollowUpInstruction(s.style))
	if err != nil {
		return nil, fmt.Errorf("create follow-up session: %w", err)
	}
	s.logger.Debug("Follow-up chat opened",
		zap.String("kind", string(result.OriginalType)),
		zap.String("risk", string(result.RiskLevel)))
	return session, nil
}

// Resume reopens a follow-up session from a stored transcript, for example
// one kept with a history item.
func (s *Seeder) Resume(result *analysis.Result, transcript []analysis.ChatMessage) (ai.Session, error) {
	history := append(SeedTranscript(result), transcript...)
	session, err := s.conv.CreateSession(history, FollowUpInstruction(s.style))
	if err != nil {
		return nil, fmt.Errorf("resume follow-up session: %w", err)
	}
	return session, nil
}

// GeneralSession opens the application assistant conversation.
func (s *Seeder) GeneralSession() (ai.Session, error) {
	history := []analysis.ChatMessage{{Role: analysis.RoleModel, Text: GeneralGreeting}}
	session, err := s.conv.CreateSession(history, generalInstruction)
	if err != nil {
		return nil, fmt.Errorf("create general session: %w", err)
	}
	return session, nil
}

// SeedTranscript builds the two-turn history for a follow-up chat: a user
// turn restating what was analyzed and a model turn restating the findings.
func SeedTranscript(result *analysis.Result) []analysis.ChatMessage {
	return []analysis.ChatMessage{
		{Role: analysis.RoleUser, Text: describeSubject(result)},
		{Role: analysis.RoleModel, Text: describeFindings(result)},
	}
}

func describeSubject(r *analysis.Result) string {
	switch r.OriginalType {
	case analysis.KindImage:
		msg := fmt.Sprintf("Here is the content I analyzed: Type: image, File: %s", orNone(r.SourceFileName))
		if strings.TrimSpace(r.OriginalContent) != "" {
			msg += fmt.Sprintf(", Question: %s", r.OriginalContent)
		}
		return msg
	case analysis.KindDocument:
		return fmt.Sprintf("Here is the content I analyzed: Type: document, Files: %s", orNone(r.SourceFileName))
	default:
		return fmt.Sprintf("Here is the content I analyzed: Type: %s, Content: %s", r.OriginalType, r.OriginalContent)
	}
}

func describeFindings(r *analysis.Result) string {
	var sb strings.Builder
	sb.WriteString("Understood. I have the context of the analysis. ")
	fmt.Fprintf(&sb, "The risk level is %s. ", r.RiskLevel)
	fmt.Fprintf(&sb, "Here is a summary of the findings: %s.", strings.TrimRight(r.Summary, "."))

	if len(r.Insights) > 0 {
		sb.WriteString("\nKey insights:")
		for _, in := range r.Insights {
			sb.WriteString("\n- ")
			sb.WriteString(in.String())
		}
	}

	if len(r.NextSuggestions) > 0 {
		sb.WriteString("\nSuggested next steps:")
		for i, in := range r.NextSuggestions {
			if i == maxSeedSuggestions {
				break
			}
			sb.WriteString("\n- ")
			sb.WriteString(in.String())
		}
	}

	sb.WriteString("\nYou can now ask me follow-up questions.")
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "(unnamed)"
	}
	return s
}
