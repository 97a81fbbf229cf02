package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/content"
)

type brokenFile struct{}

func (brokenFile) Name() string     { return "broken.png" }
func (brokenFile) MIMEType() string { return "image/png" }
func (brokenFile) Open() (io.ReadCloser, error) {
	return nil, errors.New("disk unplugged")
}

func TestComputeKeyDeterministic(t *testing.T) {
	ctx := context.Background()
	reader := content.NewFileReader(nil)

	files := func() []content.File {
		return []content.File{
			content.NewMemFile("a.txt", "text/plain", []byte("first")),
			content.NewMemFile("b.txt", "text/plain", []byte("second")),
		}
	}

	k1, err := ComputeKey(ctx, reader, analysis.KindDocument, "", files())
	require.NoError(t, err)
	k2, err := ComputeKey(ctx, reader, analysis.KindDocument, "", files())
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", k1)
}

func TestComputeKeyTextOnlyMatchesPlainDigest(t *testing.T) {
	key, err := ComputeKey(context.Background(), content.NewFileReader(nil), analysis.KindText, "Vaccines cause X", nil)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("text::Vaccines cause X"))
	assert.Equal(t, hex.EncodeToString(sum[:]), key)
}

func TestComputeKeySensitivity(t *testing.T) {
	ctx := context.Background()
	reader := content.NewFileReader(nil)

	base, err := ComputeKey(ctx, reader, analysis.KindImage, "is this real?",
		[]content.File{content.NewMemFile("img.png", "image/png", []byte{0x89, 'P', 'N', 'G', 0x01})})
	require.NoError(t, err)

	t.Run("single byte change", func(t *testing.T) {
		other, err := ComputeKey(ctx, reader, analysis.KindImage, "is this real?",
			[]content.File{content.NewMemFile("img.png", "image/png", []byte{0x89, 'P', 'N', 'G', 0x02})})
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})

	t.Run("kind change", func(t *testing.T) {
		other, err := ComputeKey(ctx, reader, analysis.KindDocument, "is this real?",
			[]content.File{content.NewMemFile("img.png", "image/png", []byte{0x89, 'P', 'N', 'G', 0x01})})
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})

	t.Run("file name is not part of the key", func(t *testing.T) {
		other, err := ComputeKey(ctx, reader, analysis.KindImage, "is this real?",
			[]content.File{content.NewMemFile("renamed.png", "image/png", []byte{0x89, 'P', 'N', 'G', 0x01})})
		require.NoError(t, err)
		assert.Equal(t, base, other)
	})
}

func TestComputeKeyOrderSensitive(t *testing.T) {
	ctx := context.Background()
	reader := content.NewFileReader(nil)
	a := content.NewMemFile("a.txt", "text/plain", []byte("alpha"))
	b := content.NewMemFile("b.txt", "text/plain", []byte("beta"))

	ab, err := ComputeKey(ctx, reader, analysis.KindDocument, "", []content.File{a, b})
	require.NoError(t, err)
	ba, err := ComputeKey(ctx, reader, analysis.KindDocument, "", []content.File{b, a})
	require.NoError(t, err)

	assert.NotEqual(t, ab, ba)
}

func TestComputeKeyPropagatesReadFailure(t *testing.T) {
	key, err := ComputeKey(context.Background(), content.NewFileReader(nil), analysis.KindImage, "",
		[]content.File{brokenFile{}})

	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrFingerprint)
	assert.Empty(t, key)
}
