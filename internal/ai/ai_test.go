package ai

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"embedded payload", `gemini API error (status 400): {"error":{"code":400,"message":"API key not valid"}}`, "API key not valid"},
		{"bare payload", `{"error":{"message":"quota"}}`, "quota"},
		{"plain text", "connection refused", "connection refused"},
		{"json without error", `{"detail":"x"}`, `{"detail":"x"}`},
		{"broken json", `oops {not json}`, `oops {not json}`},
		{"openai key echoed", `{"error":{"message":"Incorrect API key provided: sk-proj-abcdef123456."}}`, "Incorrect API key provided: [REDACTED]."},
		{"key in url", `Post "https://host/v1?key=AIzaSyA1234567890abcdefghijkl": dial tcp`, `Post "https://host/v1?[REDACTED]": dial tcp`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.in))
		})
	}
}

func TestCollect(t *testing.T) {
	seq := func(items []string, failAt int) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for i, s := range items {
				if i == failAt {
					yield("", errors.New("stream broke"))
					return
				}
				if !yield(s, nil) {
					return
				}
			}
		}
	}

	got, err := Collect(seq([]string{"a", "b", "c"}, -1))
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	got, err = Collect(seq([]string{"a", "b", "c"}, 2))
	assert.EqualError(t, err, "stream broke")
	assert.Equal(t, "ab", got)
}
