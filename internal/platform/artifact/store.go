// Package artifact provides scoped temporary storage for uploaded documents
// while a recognition request is in flight. Every staged artifact is owned by
// exactly one request and must be released on every exit path; release
// failures are reported to the caller for logging but are never allowed to
// mask the request's actual outcome.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	ErrEmptyContent    = errors.New("artifact content is empty")
	ErrMissingFileName = errors.New("artifact file name is required")
)

// Handle identifies one staged artifact.
type Handle struct {
	ID           string
	OriginalName string
	Path         string
}

// Store is the contract for staging uploaded document bytes somewhere a
// recognition worker can read them.
type Store interface {
	// Stage persists content under a collision-free name and returns a
	// handle for later release.
	Stage(content []byte, originalName string) (*Handle, error)

	// Release removes the staged artifact. Releasing an already-released
	// handle is an error so double-release bugs surface in tests.
	Release(h *Handle) error
}

// FSStore stages artifacts as files in a temp directory. Names are prefixed
// with a fresh UUID, so concurrent requests never collide and no locking is
// needed.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

// Dir returns the backing directory.
func (s *FSStore) Dir() string { return s.dir }

func (s *FSStore) Stage(content []byte, originalName string) (*Handle, error) {
	if originalName == "" {
		return nil, ErrMissingFileName
	}
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	// The directory may have been removed out-of-band; recreate idempotently
	// on every stage.
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", s.dir, err)
	}

	id := uuid.New().String()
	// Strip any path components a client smuggled into the file name.
	name := id + "_" + filepath.Base(originalName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", path, err)
	}

	return &Handle{ID: id, OriginalName: originalName, Path: path}, nil
}

func (s *FSStore) Release(h *Handle) error {
	if h == nil {
		return errors.New("release of nil artifact handle")
	}
	if err := os.Remove(h.Path); err != nil {
		return fmt.Errorf("release artifact %s: %w", h.Path, err)
	}
	return nil
}
