package store

import (
	"bytes"
	"compress/gzip"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bluebrain/bbic/internal/bbicerr"
)

// DirStore is a directory-backed GroupStore: every group is a directory and
// every dataset is a file, attrs live in a small JSON sidecar per group.
//
// Grounded on the teacher's internal/pmtiles.Writer two-phase discipline
// (pre-allocate before any write; identical content deduplicated by a
// FNV-64a hash map) and internal/tile/diskstore.go's preference for direct,
// lock-scoped filesystem operations over buffering everything in memory.
// Unlike the teacher's single packed archive file, DirStore lays files out
// directly on disk per spec.md §6's path layout, since the container here
// has no directory/offset index format to assemble — every path is already
// addressable by the filesystem.
type DirStore struct {
	root string

	mu    sync.Mutex
	dedup map[uint64]dedupLoc // content hash -> first path with that content, for hardlink reuse

	dedupHits atomic.Int64
}

type dedupLoc struct {
	path   string
	length int
}

// NewDirStore opens (creating if needed) a directory-backed store rooted at
// dir.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, bbicerr.Wrap(bbicerr.IOFailure, err, "creating store root %q", dir)
	}
	return &DirStore{root: dir, dedup: make(map[uint64]dedupLoc)}, nil
}

// DedupHits returns the number of WriteDataset calls satisfied by hardlinking
// to previously written identical content, for diagnostics.
func (s *DirStore) DedupHits() int64 { return s.dedupHits.Load() }

func (s *DirStore) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *DirStore) Has(path string) bool {
	_, err := os.Stat(s.abs(path))
	return err == nil
}

func (s *DirStore) RequireGroup(path string) error {
	fi, err := os.Stat(s.abs(path))
	if err != nil || !fi.IsDir() {
		return missingGroup(path)
	}
	return nil
}

func (s *DirStore) CreateGroup(path string) error {
	if err := os.MkdirAll(s.abs(path), 0o755); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "creating group %q", path)
	}
	return nil
}

func (s *DirStore) Attrs(path string) (Attrs, error) {
	if !s.Has(path) {
		return nil, missingGroup(path)
	}
	return newDirAttrs(s.attrsFile(path)), nil
}

func (s *DirStore) attrsFile(path string) string {
	return s.abs(path) + ".attrs.json"
}

func (s *DirStore) CreateDataset(path string, length int) error {
	if isVolumeBlockPath(path) {
		return s.createCompressedDataset(path, length)
	}
	full := s.abs(path)
	if fi, err := os.Stat(full); err == nil {
		if fi.Size() != int64(length) {
			return bbicerr.New(bbicerr.AlreadyExists, "dataset %q already created with length %d, requested %d", path, fi.Size(), length)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "creating parent of %q", path)
	}
	f, err := os.Create(full)
	if err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "pre-allocating dataset %q", path)
	}
	defer f.Close()
	if err := f.Truncate(int64(length)); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "truncating dataset %q to length %d", path, length)
	}
	return nil
}

func (s *DirStore) WriteDataset(path string, data []byte) error {
	if isVolumeBlockPath(path) {
		return s.writeCompressedDataset(path, data)
	}
	full := s.abs(path)
	fi, err := os.Stat(full)
	if err != nil {
		return missingGroup(path)
	}
	if fi.Size() != int64(len(data)) {
		return bbicerr.New(bbicerr.IncompatibleSize, "dataset %q has length %d, write provided %d bytes", path, fi.Size(), len(data))
	}

	if len(data) > 0 {
		h := fnv.New64a()
		h.Write(data)
		hash := h.Sum64()

		s.mu.Lock()
		loc, ok := s.dedup[hash]
		if !ok {
			s.dedup[hash] = dedupLoc{path: full, length: len(data)}
		}
		s.mu.Unlock()

		if ok && loc.length == len(data) && loc.path != full {
			if err := os.Remove(full); err == nil {
				if err := os.Link(loc.path, full); err == nil {
					s.dedupHits.Add(1)
					return nil
				}
			}
			// Hardlink failed (e.g. cross-device or already relinked
			// elsewhere): fall through to a plain write.
		}
	}

	if err := writeFileAtomic(full, data); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "writing dataset %q", path)
	}
	return nil
}

func (s *DirStore) ReadDataset(path string) ([]byte, error) {
	if isVolumeBlockPath(path) {
		data, err := readGzipFile(s.abs(path))
		if err != nil {
			return nil, missingGroup(path)
		}
		return data, nil
	}
	data, err := os.ReadFile(s.abs(path))
	if err != nil {
		return nil, missingGroup(path)
	}
	return data, nil
}

// isVolumeBlockPath reports whether path addresses one of a Volume's block
// datasets, the only datasets spec.md §6 asks to be stored with lossless
// compression (stack tiles are already compressed by their own image
// codec, so gzipping them again would only cost CPU for no space gain).
func isVolumeBlockPath(path string) bool {
	return strings.Contains(path, "/volumes/")
}

// createCompressedDataset is CreateDataset for a volume block: since the
// on-disk size of a gzip-compressed dataset cannot be known ahead of the
// write that fills it, pre-allocation writes out a valid gzip stream of
// `length` zero bytes immediately instead of truncating to a raw byte
// count, and re-creation safety is checked by decompressing and comparing
// logical lengths rather than comparing file sizes.
func (s *DirStore) createCompressedDataset(path string, length int) error {
	full := s.abs(path)
	if _, err := os.Stat(full); err == nil {
		existing, err := readGzipFile(full)
		if err != nil {
			return bbicerr.Wrap(bbicerr.IOFailure, err, "reading existing dataset %q", path)
		}
		if len(existing) != length {
			return bbicerr.New(bbicerr.AlreadyExists, "dataset %q already created with length %d, requested %d", path, len(existing), length)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "creating parent of %q", path)
	}
	return writeGzipFile(full, make([]byte, length))
}

// writeCompressedDataset is WriteDataset for a volume block: identical
// logical content still dedups via the same FNV-64a hash/hardlink scheme as
// the uncompressed path (gzip's output is deterministic for identical input
// and writer settings, so two blocks with the same raw bytes compress to the
// same bytes on disk and can safely share an inode).
func (s *DirStore) writeCompressedDataset(path string, data []byte) error {
	full := s.abs(path)
	if !s.Has(path) {
		return missingGroup(path)
	}

	if len(data) > 0 {
		h := fnv.New64a()
		h.Write(data)
		hash := h.Sum64()

		s.mu.Lock()
		loc, ok := s.dedup[hash]
		if !ok {
			s.dedup[hash] = dedupLoc{path: full, length: len(data)}
		}
		s.mu.Unlock()

		if ok && loc.length == len(data) && loc.path != full {
			if err := os.Remove(full); err == nil {
				if err := os.Link(loc.path, full); err == nil {
					s.dedupHits.Add(1)
					return nil
				}
			}
		}
	}

	return writeGzipFile(full, data)
}

func writeGzipFile(path string, data []byte) error {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "creating gzip writer for %q", path)
	}
	if _, err := w.Write(data); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "compressing dataset %q", path)
	}
	if err := w.Close(); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "finalizing compressed dataset %q", path)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "writing dataset %q", path)
	}
	return nil
}

func readGzipFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// writeFileAtomic writes data to a uuid-named temporary file in path's
// directory, then renames it over path, so a reader never observes a
// partially written dataset. Grounded on internal/pmtiles.Writer's
// temp-file-then-finalize discipline; the uuid (rather than os.CreateTemp's
// random suffix) gives concurrent writers from different ranks on a shared
// filesystem a collision-resistant name without relying on O_EXCL retry.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
