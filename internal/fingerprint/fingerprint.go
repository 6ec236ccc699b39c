package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultChunkSize is the read size used when no chunk size is configured.
const DefaultChunkSize = 4 * 1024 * 1024

// ErrInputUnavailable marks inputs that are missing, unreadable, or not regular
// files. The cache state of a stage cannot be determined when this is returned.
var ErrInputUnavailable = errors.New("input unavailable")

// FileFingerprint identifies a file's content at a point in time. Identity is
// Name plus ContentHash; Size is carried so corrupt copies stand out in diffs.
type FileFingerprint struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
}

// Observer receives the byte count and elapsed time of each hashed file.
type Observer interface {
	ObserveFingerprint(bytes int64, elapsed time.Duration)
}

// Hasher streams files through SHA-256.
type Hasher struct {
	// ChunkSize is the read size in bytes; values <= 0 use DefaultChunkSize.
	ChunkSize int
	// Observer, when set, is notified after every successfully hashed file.
	Observer Observer
}

// File fingerprints path using DefaultChunkSize.
func File(ctx context.Context, path string) (FileFingerprint, error) {
	return Hasher{}.File(ctx, path)
}

// File fingerprints path. The context is checked between chunks.
func (h Hasher) File(ctx context.Context, path string) (FileFingerprint, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return FileFingerprint{}, fmt.Errorf("fingerprint: open %s: %w: %w", path, ErrInputUnavailable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileFingerprint{}, fmt.Errorf("fingerprint: stat %s: %w: %w", path, ErrInputUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return FileFingerprint{}, fmt.Errorf("fingerprint: %s is not a regular file: %w", path, ErrInputUnavailable)
	}

	chunk := h.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, chunk)
	digest := sha256.New()
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return FileFingerprint{}, err
		}
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			digest.Write(buf[:n])
			total += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return FileFingerprint{}, fmt.Errorf("fingerprint: read %s: %w: %w", path, ErrInputUnavailable, readErr)
		}
	}

	if h.Observer != nil {
		h.Observer.ObserveFingerprint(total, time.Since(start))
	}
	return FileFingerprint{
		Name:        filepath.Base(path),
		Size:        total,
		ContentHash: hex.EncodeToString(digest.Sum(nil)),
	}, nil
}

// Files fingerprints every path and returns the results sorted by name. The
// first unavailable input aborts the whole set.
func (h Hasher) Files(ctx context.Context, paths []string) ([]FileFingerprint, error) {
	out := make([]FileFingerprint, 0, len(paths))
	for _, path := range paths {
		fp, err := h.File(ctx, path)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	Sort(out)
	return out, nil
}

// Sort orders fingerprints by name, breaking ties by content hash so the
// order is total even when two inputs share a base name.
func Sort(fps []FileFingerprint) {
	sort.SliceStable(fps, func(i, j int) bool {
		if fps[i].Name == fps[j].Name {
			return fps[i].ContentHash < fps[j].ContentHash
		}
		return fps[i].Name < fps[j].Name
	})
}
