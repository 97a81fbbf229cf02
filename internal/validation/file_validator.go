// Package validation checks uploaded files before they reach the analyzer.
package validation

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/content"
)

// ErrorType classifies a rejected upload.
type ErrorType string

const (
	ErrorInvalidBase64    ErrorType = "Invalid base64 encoding"
	ErrorFileTooLarge     ErrorType = "File size exceeds maximum"
	ErrorInvalidType      ErrorType = "File type not allowed"
	ErrorInvalidFilename  ErrorType = "Invalid filename"
	ErrorMagicMismatch    ErrorType = "File content does not match its type"
	ErrorEmptyFile        ErrorType = "File is empty"
	ErrorSuspiciousScript ErrorType = "File contains suspicious patterns"
)

// Error is returned for a rejected upload. It matches analysis.ErrInvalidRequest.
type Error struct {
	Type     ErrorType
	Filename string
	Message  string
}

func (e *Error) Error() string {
	if e.Filename == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Message)
}

func (e *Error) Unwrap() error { return analysis.ErrInvalidRequest }

// Upload is a file as received over the wire.
type Upload struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64, optionally as a data: URL
}

type signature struct {
	mime  string
	magic [][]byte
}

var (
	imageTypes = map[string]signature{
		".png":  {"image/png", [][]byte{{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}}},
		".jpg":  {"image/jpeg", [][]byte{{0xff, 0xd8, 0xff}}},
		".jpeg": {"image/jpeg", [][]byte{{0xff, 0xd8, 0xff}}},
		".gif":  {"image/gif", [][]byte{[]byte("GIF87a"), []byte("GIF89a")}},
		".webp": {"image/webp", [][]byte{[]byte("RIFF")}},
	}
	documentTypes = map[string]signature{
		".txt":  {"text/plain", nil},
		".md":   {"text/markdown", nil},
		".csv":  {"text/csv", nil},
		".json": {"application/json", nil},
		".html": {"text/html", nil},
		".htm":  {"text/html", nil},
		".pdf":  {"application/pdf", [][]byte{[]byte("%PDF")}},
		".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", [][]byte{{'P', 'K', 0x03, 0x04}}},
		".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", [][]byte{{'P', 'K', 0x03, 0x04}}},
	}
	textExtensions = map[string]bool{".txt": true, ".md": true, ".csv": true, ".json": true, ".html": true, ".htm": true}

	scriptPatterns = [][]byte{
		[]byte("<script"),
		[]byte("javascript:"),
		[]byte("vbscript:"),
	}

	pathTraversal = regexp.MustCompile(`\.\.[/\\]`)
	invalidChars  = regexp.MustCompile(`[<>:"|?*\x00-\x1f]`)
)

// FileValidator validates uploads for one service instance.
type FileValidator struct {
	maxFileSize       int
	maxFilenameLength int
}

// New creates a validator. maxFileSize <= 0 uses 20 MiB.
func New(maxFileSize int) *FileValidator {
	if maxFileSize <= 0 {
		maxFileSize = 20 << 20
	}
	return &FileValidator{maxFileSize: maxFileSize, maxFilenameLength: 255}
}

// Files validates every upload for kind and returns them as in-memory files.
func (v *FileValidator) Files(kind analysis.Kind, uploads []Upload) ([]content.File, error) {
	files := make([]content.File, 0, len(uploads))
	for _, u := range uploads {
		f, err := v.File(kind, u)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// File validates a single upload.
func (v *FileValidator) File(kind analysis.Kind, u Upload) (*content.MemFile, error) {
	name, err := v.Filename(u.Name)
	if err != nil {
		return nil, err
	}

	allowed := documentTypes
	if kind == analysis.KindImage {
		allowed = imageTypes
	}
	ext := strings.ToLower(filepath.Ext(name))
	sig, ok := allowed[ext]
	if !ok {
		return nil, &Error{Type: ErrorInvalidType, Filename: name, Message: fmt.Sprintf("file type %q is not allowed for %s analysis", ext, kind)}
	}

	payload := stripDataURL(u.Data)
	if len(payload) == 0 {
		return nil, &Error{Type: ErrorEmptyFile, Filename: name, Message: "file content is empty"}
	}
	if len(payload) > v.maxFileSize*4/3+100 {
		return nil, &Error{Type: ErrorFileTooLarge, Filename: name, Message: "encoded content is too large"}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &Error{Type: ErrorInvalidBase64, Filename: name, Message: "invalid base64 encoding: " + err.Error()}
	}
	if len(data) == 0 {
		return nil, &Error{Type: ErrorEmptyFile, Filename: name, Message: "file content is empty"}
	}
	if len(data) > v.maxFileSize {
		return nil, &Error{Type: ErrorFileTooLarge, Filename: name, Message: fmt.Sprintf("file size (%d bytes) exceeds maximum (%d)", len(data), v.maxFileSize)}
	}
	if !matchesMagic(data, sig.magic) {
		return nil, &Error{Type: ErrorMagicMismatch, Filename: name, Message: fmt.Sprintf("file content does not match the %q extension", ext)}
	}
	if textExtensions[ext] && ext != ".html" && ext != ".htm" {
		if p := findScript(data); p != "" {
			return nil, &Error{Type: ErrorSuspiciousScript, Filename: name, Message: "file contains potentially malicious content: " + p}
		}
	}

	mime := u.MIMEType
	if mime == "" || mime == "application/octet-stream" {
		mime = sig.mime
	}
	return content.NewMemFile(name, mime, data), nil
}

// Filename validates name and returns its sanitized base name.
func (v *FileValidator) Filename(name string) (string, error) {
	switch {
	case strings.TrimSpace(name) == "":
		return "", &Error{Type: ErrorInvalidFilename, Message: "filename cannot be empty"}
	case strings.Contains(name, "\x00"):
		return "", &Error{Type: ErrorInvalidFilename, Message: "filename contains null bytes"}
	case pathTraversal.MatchString(name):
		return "", &Error{Type: ErrorInvalidFilename, Filename: name, Message: "filename contains invalid path sequences"}
	case invalidChars.MatchString(name):
		return "", &Error{Type: ErrorInvalidFilename, Filename: name, Message: "filename contains invalid characters"}
	case len(name) > v.maxFilenameLength:
		return "", &Error{Type: ErrorInvalidFilename, Message: fmt.Sprintf("filename exceeds maximum length of %d", v.maxFilenameLength)}
	}
	return removeControlChars(filepath.Base(name)), nil
}

// MIMEType returns the MIME type registered for the file's extension, or
// application/octet-stream.
func MIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if sig, ok := imageTypes[ext]; ok {
		return sig.mime
	}
	if sig, ok := documentTypes[ext]; ok {
		return sig.mime
	}
	return "application/octet-stream"
}

func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func matchesMagic(data []byte, magic [][]byte) bool {
	if len(magic) == 0 {
		return true
	}
	for _, m := range magic {
		if bytes.HasPrefix(data, m) {
			return true
		}
	}
	return false
}

func findScript(data []byte) string {
	lower := bytes.ToLower(data)
	for _, p := range scriptPatterns {
		if bytes.Contains(lower, p) {
			return string(p)
		}
	}
	return ""
}

func removeControlChars(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
