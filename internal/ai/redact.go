package ai

import "regexp"

// Credential shapes that provider error bodies are known to echo back.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`),
	regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|key|token|secret)\s*[:=]\s*[^\s&"',]+`),
}

// Redact masks API keys and tokens in a message bound for users or logs.
func Redact(msg string) string {
	for _, p := range secretPatterns {
		msg = p.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}
