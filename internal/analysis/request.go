package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trust-ai-analyzer/internal/content"
)

// DefaultMaxDocuments bounds the number of documents per request.
const DefaultMaxDocuments = 5

var (
	// ErrInvalidRequest marks requests rejected before any cache or network activity.
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrFingerprint marks a failure to read file bytes while computing a cache key.
	ErrFingerprint = errors.New("fingerprint computation failed")
	// ErrRemoteCall marks a failed call to the remote model.
	ErrRemoteCall = errors.New("remote model call failed")
	// ErrDecode marks model output that could not be decoded in structured mode.
	ErrDecode = errors.New("model output could not be decoded")
)

// ValidationError describes a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets callers match ErrInvalidRequest.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// Request is a caller-constructed analysis request.
type Request struct {
	Kind  Kind
	Text  string
	Files []content.File
}

// Validate enforces the per-modality input rules. maxDocuments <= 0 uses
// DefaultMaxDocuments.
func (r Request) Validate(maxDocuments int) error {
	if maxDocuments <= 0 {
		maxDocuments = DefaultMaxDocuments
	}

	switch r.Kind {
	case KindText:
		if strings.TrimSpace(r.Text) == "" {
			return &ValidationError{Field: "text", Message: "Please enter text to analyze."}
		}
	case KindURL:
		if strings.TrimSpace(r.Text) == "" {
			return &ValidationError{Field: "text", Message: "Please enter a URL to analyze."}
		}
	case KindImage, KindDocument:
		if len(r.Files) == 0 {
			return &ValidationError{Field: "files", Message: fmt.Sprintf("Please upload at least one %s to analyze.", r.Kind)}
		}
		if r.Kind == KindImage && len(r.Files) > 1 {
			return &ValidationError{Field: "files", Message: "Please upload a single image to analyze."}
		}
		if r.Kind == KindDocument && len(r.Files) > maxDocuments {
			return &ValidationError{Field: "files", Message: fmt.Sprintf("Please upload at most %d documents to analyze.", maxDocuments)}
		}
		for i, f := range r.Files {
			if f == nil {
				return &ValidationError{Field: "files", Message: fmt.Sprintf("File %d is missing.", i+1)}
			}
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("Unsupported analysis type %q.", r.Kind)}
	}
	return nil
}

// FileNames joins the uploaded file names, or returns "" when there are none.
func (r Request) FileNames() string {
	if len(r.Files) == 0 {
		return ""
	}
	names := make([]string, len(r.Files))
	for i, f := range r.Files {
		names[i] = f.Name()
	}
	return strings.Join(names, ", ")
}
