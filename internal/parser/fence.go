package parser

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:[A-Za-z]+)?\\s*(.*?)\\s*```")

// StripCodeFence returns the body of the first fenced code block in s, or s
// trimmed when there is none.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlock.FindStringSubmatch(s); m != nil && m[1] != "" {
		return m[1]
	}
	return s
}

// outerObject returns the text between the first '{' and the last '}'.
func outerObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
