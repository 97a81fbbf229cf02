package analyzer

import (
	"fmt"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/parser"
)

const documentSeparator = "\n\n---\n\n"

func textPrompt(text string) string {
	return fmt.Sprintf("Analyze the following text for misinformation: \"%s\"", text)
}

func urlPrompt(url string) string {
	return "Analyze the content of the URL for misinformation: " + url
}

func imagePrompt(question string) string {
	return fmt.Sprintf("Analyze this image for misinformation, considering the user's question: \"%s\"", question)
}

const documentPromptPrefix = "Analyze the following document(s) for misinformation. The content is: \n\n"

const structuredInstruction = `You are an expert misinformation analyst. Analyze the provided content and return a detailed report.
- riskLevel: Assess the risk of misinformation (LOW, MEDIUM, HIGH, UNKNOWN).
- summary: Provide a concise summary of your findings.
- insights: List key observations, red flags, or noteworthy points. Sometimes an insight can be an object with a "suggestion" and a "detail" property.
- credibilityScore: An estimated score from 0-100 based on factors like sourcing, language, and evidence.
- keyHighlights: Bullet points of the most critical findings.
- nextSuggestions: Two actionable suggestions for the user to investigate further.
- tone: The overall tone of the content.
- language: The detected language of the content.
- sentiment: The sentiment of the content (Positive, Negative, Neutral). For images, it's the sentiment of the user query.
- graphData: For documents, identify key entities (people, organizations, locations, topics) and their relationships.
- imageDescriptions: For documents containing images, describe each image.
- metadata: For documents, extract available metadata (author, creation date, etc.). Format this as a JSON string. For example: '{"author": "Jane Doe", "created": "2024-01-01"}'. If no metadata is found, return an empty JSON object as a string: '{}'.
- The analysis should be grounded in verifiable facts.
- IMPORTANT: You MUST format your entire response as a single, valid JSON object. Do not use markdown backticks like ` + "```json" + ` or any other text outside the JSON.`

const markedInstruction = `You are an expert misinformation analyst. Analyze the provided content and write your report as plain text using exactly these section headers, each on its own line:
Risk Level: one of LOW, MEDIUM, HIGH, UNKNOWN
Summary: a concise summary of your findings
Detailed Analysis:
- one line per key observation, red flag or noteworthy point
Key Highlights:
- the most critical findings
Credibility Score: an estimated score from 0-100
Do not use any other headers. The analysis should be grounded in verifiable facts.`

const markedDocumentSections = `
For documents, also include these sections:
Metadata:
- Key: value lines for author, creation date and similar fields
Image Analysis:
- one line describing each image in the document
Entity & Relationship Graph:
a fenced json block of the form {"nodes":[{"id","label","type"}],"edges":[{"source","target","label"}]}
Follow-up Suggestions:
- two actionable suggestions for the user to investigate further
Tone Analysis:
- Tone: the overall tone
- Language: the detected language
- Sentiment: Positive, Negative or Neutral`

// systemInstruction returns the analyst instruction for the output mode.
func systemInstruction(mode parser.Mode, kind analysis.Kind) string {
	if mode == parser.ModeMarkedText {
		if kind == analysis.KindDocument {
			return markedInstruction + markedDocumentSections
		}
		return markedInstruction
	}
	return structuredInstruction
}

const transparencyDisclaimer = "This tool is designed to assist in critical thinking, not to replace it. Always verify information from multiple reputable sources before forming a conclusion."

// transparencyReport describes how a fresh result was produced.
func transparencyReport(kind analysis.Kind, mode parser.Mode, grounded bool) *analysis.TransparencyReport {
	basis := "The analysis was based on the provided content itself."
	if grounded {
		basis = "Google Search was used to ground the analysis with real-time web information."
	}
	output := "A structured JSON response containing risk level, summary, insights, and other metrics was generated."
	if mode == parser.ModeMarkedText {
		output = "A sectioned text response containing risk level, summary, and insights was generated and normalized."
	}

	return &analysis.TransparencyReport{
		Process: []string{
			fmt.Sprintf("The analysis was initiated for a '%s' input.", kind),
			"The content was processed by a large language model with specific instructions to act as a misinformation expert.",
			basis,
			"The model evaluated various factors including language, sourcing (if applicable), potential biases, and consistency of information.",
			output,
		},
		Limitations: []string{
			"The AI is a tool and may not understand all nuances, sarcasm, or cultural context.",
			"Real-time information can be volatile; web search results reflect a snapshot in time.",
			"The credibility score is an estimation and not a definitive measure of truth.",
			"Analysis of complex documents or images may miss subtle details.",
		},
		Disclaimer: transparencyDisclaimer,
	}
}
