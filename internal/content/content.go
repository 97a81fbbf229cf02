// Package content reads uploaded files for fingerprinting and for building
// model requests.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedDocument is returned when no text extractor handles a file.
var ErrUnsupportedDocument = errors.New("unsupported document type")

// File is an uploaded file handle.
type File interface {
	Name() string
	MIMEType() string
	Open() (io.ReadCloser, error)
}

// MemFile is a file held in memory, e.g. decoded from an HTTP upload.
type MemFile struct {
	FileName string
	MIME     string
	Data     []byte
}

// NewMemFile creates an in-memory file.
func NewMemFile(name, mimeType string, data []byte) *MemFile {
	return &MemFile{FileName: name, MIME: mimeType, Data: data}
}

func (f *MemFile) Name() string     { return f.FileName }
func (f *MemFile) MIMEType() string { return f.MIME }

func (f *MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// DiskFile is a file on the local filesystem.
type DiskFile struct {
	Path string
	MIME string
}

func (f *DiskFile) Name() string     { return filepath.Base(f.Path) }
func (f *DiskFile) MIMEType() string { return f.MIME }

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Extractor converts a document's bytes into plain text.
type Extractor func(ctx context.Context, data []byte) (string, error)

// Reader returns raw bytes and extracted text for files.
type Reader interface {
	Bytes(ctx context.Context, f File) ([]byte, error)
	Text(ctx context.Context, f File) (string, error)
}

// FileReader is the default Reader. Plain-text formats are decoded directly;
// other formats need an Extractor registered for their MIME type.
type FileReader struct {
	extractors map[string]Extractor
}

// NewFileReader creates a reader with the given MIME-type extractors.
func NewFileReader(extractors map[string]Extractor) *FileReader {
	r := &FileReader{extractors: make(map[string]Extractor, len(extractors))}
	for mime, fn := range extractors {
		r.extractors[strings.ToLower(mime)] = fn
	}
	return r
}

// Bytes reads the whole file.
func (r *FileReader) Bytes(ctx context.Context, f File) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return data, nil
}

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
	".html": true,
	".htm":  true,
	".xml":  true,
}

// Text extracts the plain text of a document.
func (r *FileReader) Text(ctx context.Context, f File) (string, error) {
	mime := strings.ToLower(f.MIMEType())
	if fn, ok := r.extractors[mime]; ok {
		data, err := r.Bytes(ctx, f)
		if err != nil {
			return "", err
		}
		return fn(ctx, data)
	}

	if strings.HasPrefix(mime, "text/") || textExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
		data, err := r.Bytes(ctx, f)
		if err != nil {
			return "", err
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8 text: %w", f.Name(), ErrUnsupportedDocument)
		}
		return string(data), nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, f.MIMEType())
}
