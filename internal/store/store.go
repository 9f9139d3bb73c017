// Package store implements the GroupStore abstraction of spec.md §6: a
// hierarchical key-value container with typed attributes, standing in for
// the HDF5-like container the reference system actually uses. Two
// implementations are provided: MemStore (in-process, for tests and small
// jobs) and DirStore (a directory-backed layout, grounded on the teacher's
// internal/pmtiles two-pass writer discipline).
package store

import (
	"github.com/bluebrain/bbic/internal/bbicerr"
)

// Attrs is the typed attribute bag attached to a group. MemStore keeps any
// value as given; DirStore's JSON sidecar stores only uint32, bool, string
// and Matrix4 (a row-major 4x4 matrix) and silently drops a value of any
// other type, uint64 included.
type Attrs interface {
	Get(name string) (any, bool)
	Set(name string, value any)
}

// GroupStore is the hierarchical key-value store spec.md §6 treats as an
// abstract external collaborator. Every path is a '/'-joined string such as
// "bbic/stacks/0/levels/2/5/1/3".
//
// Operations may be collective when the underlying transport is MPI-backed
// (§5): callers coordinate via ClusterComm and must call CreateDataset with
// identical (path, length) on every rank before any rank writes, per the
// pre-allocation protocol.
type GroupStore interface {
	// Has reports whether a group or dataset exists at path.
	Has(path string) bool
	// RequireGroup returns an error if the group at path does not exist.
	RequireGroup(path string) error
	// CreateGroup creates the group at path, and any missing ancestors. It is
	// a no-op (not AlreadyExists) if the group already exists.
	CreateGroup(path string) error
	// Attrs returns the attribute bag for the group or dataset at path.
	Attrs(path string) (Attrs, error)

	// CreateDataset pre-allocates a zero-filled byte dataset of the given
	// length at path. Safe to call once per path; a second call with a
	// different length is an error.
	CreateDataset(path string, length int) error
	// WriteDataset writes data into a previously created dataset. len(data)
	// must equal the length passed to CreateDataset.
	WriteDataset(path string, data []byte) error
	// ReadDataset reads back a previously written dataset.
	ReadDataset(path string) ([]byte, error)
}

// memAttrs is MemStore's in-memory Attrs implementation (DirStore uses the
// JSON-sidecar dirAttrs instead).
type memAttrs struct {
	values map[string]any
}

func newMemAttrs() *memAttrs {
	return &memAttrs{values: make(map[string]any)}
}

func (a *memAttrs) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

func (a *memAttrs) Set(name string, value any) {
	a.values[name] = value
}

func missingGroup(path string) error {
	return bbicerr.New(bbicerr.MissingEntity, "group %q does not exist", path)
}

func alreadyExists(path string) error {
	return bbicerr.New(bbicerr.AlreadyExists, "%q already exists", path)
}
