package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/rendering"
	"github.com/jonathan/data-augmenter/internal/types"
)

// ErrNotFound is returned when a handle names no object.
var ErrNotFound = errors.New("storage: object not found")

// ResultKey is the object key of a pipeline's augmented table in the given format
func ResultKey(pipelineID uuid.UUID, format string) string {
	return fmt.Sprintf("augmented/%s/result.%s", pipelineID, format)
}

// ManifestKey is the object key of a pipeline's manifest
func ManifestKey(pipelineID uuid.UUID) string {
	return fmt.Sprintf("augmented/%s/manifest.json", pipelineID)
}

// SourceKey is the object key for an uploaded source file
func SourceKey(name string) string {
	return fmt.Sprintf("sources/%s/%s", uuid.New(), path.Base(filepath.ToSlash(name)))
}

// LocalStorage keeps objects as files under a root directory. Handles are
// slash-separated keys relative to the root.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the root directory if needed
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// Root returns the absolute root directory
func (s *LocalStorage) Root() string { return s.root }

// resolve maps a handle to a path inside the root, rejecting escapes
func (s *LocalStorage) resolve(handle string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(handle))
	if clean == "/" || strings.Contains(handle, "\x00") {
		return "", &Error{Op: "resolve", Handle: handle, Cause: errors.New("invalid handle")}
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// LoadTable reads the object named by handle as a table. Unsupported formats
// and malformed content are reported as *ingestion.ParseError.
func (s *LocalStorage) LoadTable(ctx context.Context, handle string) (*types.Table, error) {
	p, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	format, err := ingestion.DetectFormat(handle)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Op: "load", Handle: handle, Cause: ErrNotFound}
		}
		return nil, &Error{Op: "load", Handle: handle, Cause: err}
	}
	defer func() { _ = f.Close() }()
	return ingestion.Read(ctx, f, format)
}

// StoreTable encodes t in format and writes it under key
func (s *LocalStorage) StoreTable(ctx context.Context, key string, t *types.Table, format string) (*types.StoredObject, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case rendering.FormatCSV:
		err = rendering.WriteCSV(&buf, t)
	case rendering.FormatParquet:
		err = rendering.WriteParquet(&buf, t)
	default:
		return nil, &Error{Op: "store", Handle: key, Cause: fmt.Errorf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, err
	}
	return s.Put(ctx, key, &buf, format)
}

// StoreBytes writes data under key
func (s *LocalStorage) StoreBytes(ctx context.Context, key string, data []byte, format string) (*types.StoredObject, error) {
	return s.Put(ctx, key, bytes.NewReader(data), format)
}

// Put streams r to a temporary file and renames it into place, so readers
// never observe a partial object.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, format string) (*types.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h, err := blake2b.New256(nil)
	if err != nil {
		_ = tmp.Close()
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return nil, &Error{Op: "store", Handle: key, Cause: err}
	}

	return &types.StoredObject{
		Handle:   key,
		Format:   format,
		Size:     size,
		Checksum: "blake2b-256:" + hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Open returns a reader for the object named by handle
func (s *LocalStorage) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	p, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Op: "open", Handle: handle, Cause: ErrNotFound}
		}
		return nil, &Error{Op: "open", Handle: handle, Cause: err}
	}
	return f, nil
}

// Delete removes the object and any directories it leaves empty. Deleting a
// missing object is not an error.
func (s *LocalStorage) Delete(_ context.Context, handle string) error {
	p, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "delete", Handle: handle, Cause: err}
	}
	for dir := filepath.Dir(p); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
