package validation

import (
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-ai-analyzer/internal/analysis"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func TestFileAcceptsImage(t *testing.T) {
	v := New(0)

	f, err := v.File(analysis.KindImage, Upload{Name: "photo.png", Data: "data:image/png;base64," + b64(pngBytes)})
	require.NoError(t, err)
	assert.Equal(t, "photo.png", f.Name())
	assert.Equal(t, "image/png", f.MIMEType())

	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)
}

func TestFileRejections(t *testing.T) {
	v := New(64)

	tests := []struct {
		name   string
		kind   analysis.Kind
		upload Upload
		want   ErrorType
	}{
		{"document type as image", analysis.KindImage, Upload{Name: "a.pdf", Data: b64([]byte("%PDF-1.7"))}, ErrorInvalidType},
		{"magic mismatch", analysis.KindImage, Upload{Name: "a.png", Data: b64([]byte("not a png"))}, ErrorMagicMismatch},
		{"bad base64", analysis.KindDocument, Upload{Name: "a.txt", Data: "!!!"}, ErrorInvalidBase64},
		{"empty", analysis.KindDocument, Upload{Name: "a.txt", Data: ""}, ErrorEmptyFile},
		{"too large", analysis.KindDocument, Upload{Name: "a.txt", Data: b64(make([]byte, 65))}, ErrorFileTooLarge},
		{"traversal", analysis.KindDocument, Upload{Name: "../etc/passwd.txt", Data: b64([]byte("x"))}, ErrorInvalidFilename},
		{"script in text", analysis.KindDocument, Upload{Name: "a.md", Data: b64([]byte("<SCRIPT>x</script>"))}, ErrorSuspiciousScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.File(tt.kind, tt.upload)
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Type)
			assert.ErrorIs(t, err, analysis.ErrInvalidRequest)
		})
	}
}

func TestFilesDocuments(t *testing.T) {
	v := New(0)
	files, err := v.Files(analysis.KindDocument, []Upload{
		{Name: "notes.txt", Data: b64([]byte("hello"))},
		{Name: "report.pdf", MIMEType: "application/pdf", Data: b64([]byte("%PDF-1.4 body"))},
	})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "text/plain", files[0].MIMEType())
	assert.Equal(t, "application/pdf", files[1].MIMEType())
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMEType("A.JPG"))
	assert.Equal(t, "application/pdf", MIMEType("doc.pdf"))
	assert.Equal(t, "application/octet-stream", MIMEType("archive.zip"))
}
