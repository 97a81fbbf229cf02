// Package fingerprint derives deterministic cache keys for analysis requests.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/content"
)

// maxConcurrentReads bounds the fan-out when hashing many files.
const maxConcurrentReads = 4

// ComputeKey returns the lowercase hex SHA-256 of
//
//	"{kind}::{text}" [ "::" hex(sha256(file_1)) ... hex(sha256(file_n)) ]
//
// File hashes are computed concurrently but concatenated in input order.
// A read failure fails the whole computation.
func ComputeKey(ctx context.Context, reader content.Reader, kind analysis.Kind, text string, files []content.File) (string, error) {
	combined := string(kind) + "::" + text

	if len(files) > 0 {
		hashes, err := hashFiles(ctx, reader, files)
		if err != nil {
			return "", err
		}
		combined += "::"
		for _, h := range hashes {
			combined += h
		}
	}

	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:]), nil
}

// ForRequest computes the key of a request.
func ForRequest(ctx context.Context, reader content.Reader, req analysis.Request) (string, error) {
	return ComputeKey(ctx, reader, req.Kind, req.Text, req.Files)
}

func hashFiles(ctx context.Context, reader content.Reader, files []content.File) ([]string, error) {
	hashes := make([]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, f := range files {
		g.Go(func() error {
			data, err := reader.Bytes(gctx, f)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", analysis.ErrFingerprint, f.Name(), err)
			}
			sum := sha256.Sum256(data)
			hashes[i] = hex.EncodeToString(sum[:])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}
