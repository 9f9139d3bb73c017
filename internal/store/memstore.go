package store

import (
	"strings"
	"sync"

	"github.com/bluebrain/bbic/internal/bbicerr"
)

// MemStore is an in-process GroupStore, grounded on the teacher's
// DiskTileStore's in-memory path (internal/tile/diskstore.go keeps small
// archives entirely in memory before spilling), used here by the tests; the
// CLIs always work through a DirStore.
type MemStore struct {
	mu       sync.Mutex
	groups   map[string]bool
	attrs    map[string]*memAttrs
	datasets map[string][]byte
}

// NewMemStore creates an empty in-memory store with only the root group.
func NewMemStore() *MemStore {
	s := &MemStore{
		groups:   make(map[string]bool),
		attrs:    make(map[string]*memAttrs),
		datasets: make(map[string][]byte),
	}
	s.groups[""] = true
	return s
}

func (s *MemStore) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups[path] {
		return true
	}
	_, ok := s.datasets[path]
	return ok
}

func (s *MemStore) RequireGroup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.groups[path] {
		return missingGroup(path)
	}
	return nil
}

func (s *MemStore) CreateGroup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createGroupLocked(path)
	return nil
}

// createGroupLocked creates path and every ancestor, matching
// require_group's implied "create intermediate groups" semantics used
// throughout bbic/file.py's write path.
func (s *MemStore) createGroupLocked(path string) {
	if path == "" || s.groups[path] {
		return
	}
	parts := strings.Split(path, "/")
	for i := range parts {
		p := strings.Join(parts[:i+1], "/")
		s.groups[p] = true
	}
}

func (s *MemStore) Attrs(path string) (Attrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.groups[path] {
		if _, ok := s.datasets[path]; !ok {
			return nil, missingGroup(path)
		}
	}
	a, ok := s.attrs[path]
	if !ok {
		a = newMemAttrs()
		s.attrs[path] = a
	}
	return a, nil
}

func (s *MemStore) CreateDataset(path string, length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.datasets[path]; ok {
		if len(existing) != length {
			return bbicerr.New(bbicerr.AlreadyExists, "dataset %q already created with length %d, requested %d", path, len(existing), length)
		}
		return nil
	}
	s.datasets[path] = make([]byte, length)
	parent := parentPath(path)
	s.createGroupLocked(parent)
	return nil
}

func (s *MemStore) WriteDataset(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.datasets[path]
	if !ok {
		return missingGroup(path)
	}
	if len(data) != len(existing) {
		return bbicerr.New(bbicerr.IncompatibleSize, "dataset %q has length %d, write provided %d bytes", path, len(existing), len(data))
	}
	copy(existing, data)
	return nil
}

func (s *MemStore) ReadDataset(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.datasets[path]
	if !ok {
		return nil, missingGroup(path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func parentPath(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}
