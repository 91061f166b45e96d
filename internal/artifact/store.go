package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store writes bundles into project directories.
type Store struct {
	perm fs.FileMode
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithFileMode overrides the permission bits for written documents.
func WithFileMode(perm fs.FileMode) StoreOption {
	return func(s *Store) {
		if perm != 0 {
			s.perm = perm
		}
	}
}

// NewStore builds a store.
func NewStore(opts ...StoreOption) *Store {
	store := &Store{perm: 0o644}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// CheckState reports how a document on disk compares to a bundle.
type CheckState string

const (
	StateCurrent CheckState = "current"
	StateStale   CheckState = "stale"
	StateMissing CheckState = "missing"
)

// Check compares each document in b against dir.
func (s *Store) Check(dir string, b Bundle) (map[string]CheckState, error) {
	out := make(map[string]CheckState, len(b.Documents))
	for _, doc := range b.Documents {
		existing, err := os.ReadFile(filepath.Join(dir, doc.Name))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			out[doc.Name] = StateMissing
		case err != nil:
			return nil, fmt.Errorf("artifact: read %s: %w", doc.Name, err)
		case bytes.Equal(existing, doc.Body):
			out[doc.Name] = StateCurrent
		default:
			out[doc.Name] = StateStale
		}
	}
	return out, nil
}

// WriteBundle writes every document whose content differs from disk and
// returns the names it wrote.
func (s *Store) WriteBundle(dir string, b Bundle) ([]string, error) {
	states, err := s.Check(dir, b)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure %s: %w", dir, err)
	}
	var written []string
	for _, doc := range b.Documents {
		if states[doc.Name] == StateCurrent {
			continue
		}
		target := filepath.Join(dir, doc.Name)
		if err := writeAtomic(target, doc.Body, s.perm); err != nil {
			return written, fmt.Errorf("artifact: write %s for %s: %w", doc.Name, b.Project, err)
		}
		written = append(written, doc.Name)
	}
	return written, nil
}

func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
