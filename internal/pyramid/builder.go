// Package pyramid builds a Stack's tiled resolution pyramid from an
// ImageSource, one slice at a time. Grounded on bbic/file.py's File.write,
// _export_image_to_tiles and _all_store_tiles, restructured as a worker-pool
// pipeline in the shape of the teacher's internal/tile.Generate.
package pyramid

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/source"
)

// Config configures one Write call, mirroring the keyword arguments of
// bbic/file.py's File.write.
type Config struct {
	PaddingValue uint8
	Interp       codec.Interp
	StartOffset  int
	LevelOffset  int
	GenerateLODs bool
	Reverse      bool
	// Concurrency is the number of worker goroutines decoding/resizing/
	// encoding slices concurrently within this rank. The cross-rank
	// pre-allocation protocol still runs one round at a time, in slice
	// order, regardless of this value (see Write).
	Concurrency int
	Quiet       bool
}

// Builder writes a Stack's tile pyramid from an ImageSource.
type Builder struct{}

type sliceJob struct {
	round int
	slice int
}

type sliceResult struct {
	tiles [][][][]byte
	err   error
}

// Write reads every slice this rank owns (a round-robin stride of
// comm.Rank()::comm.Size() starting at cfg.StartOffset), splits each into
// the stack's tile pyramid, and stores it via the pre-allocation protocol of
// allocateAndStore. Slices this rank owns are resized/encoded concurrently
// by cfg.Concurrency workers, but results are handed to the collective
// protocol strictly in round order since every rank's AllGather call for
// round k must be answered by every other rank's round k, not round k+1.
func (Builder) Write(comm cluster.Comm, src source.ImageSource, stack *bbic.Stack, cfg Config) error {
	printInfo := comm.Rank() == 0 && !cfg.Quiet

	if printInfo {
		totalMB := stack.Width * stack.Height * stack.NumSlices / (1000 * 1000)
		fmt.Fprintf(os.Stderr, "Target stack: (%dx%dx%d) [w/h/slices], %d MB (uncompressed)\n",
			stack.Width, stack.Height, stack.NumSlices, totalMB)
		fmt.Fprintln(os.Stderr, "Creating level groups...")
	}

	levels, err := stack.CreateLevels(cfg.GenerateLODs)
	if err != nil {
		return err
	}
	if cfg.LevelOffset >= len(levels) {
		return bbicerr.New(bbicerr.InvalidArgument, "level offset %d exceeds stack's %d levels", cfg.LevelOffset, len(levels))
	}
	levels = levels[cfg.LevelOffset:]

	enc, err := stack.Codec()
	if err != nil {
		return err
	}

	size, rank := comm.Size(), comm.Rank()
	var assigned []int
	for idx := rank + cfg.StartOffset; idx < stack.NumSlices; idx += size {
		assigned = append(assigned, idx)
	}
	maxRounds := ceilDiv(stack.NumSlices-cfg.StartOffset, size)

	if printInfo {
		fmt.Fprintf(os.Stderr, "Processing slices %d to %d...\n", cfg.StartOffset, stack.NumSlices-1)
	}
	prog := newProgress(stack.NumSlices, !printInfo)

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan sliceJob, concurrency*2)
	results := make([]chan sliceResult, len(assigned))
	for i := range results {
		results[i] = make(chan sliceResult, 1)
	}

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				tiles, err := processSlice(src, stack, levels, cfg, enc, j.slice)
				results[j.round] <- sliceResult{tiles: tiles, err: err}
			}
		}()
	}
	go func() {
		for round, idx := range assigned {
			jobs <- sliceJob{round: round, slice: idx}
		}
		close(jobs)
	}()

	var firstErr error
	for round, globalSlice := range assigned {
		res := <-results[round]
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = res.err
			comm.Abort()
			continue
		}
		if err := allocateAndStore(comm, levels, globalSlice, res.tiles); err != nil {
			firstErr = err
			comm.Abort()
			continue
		}
		if printInfo {
			prog.Increment()
		}
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	// Rounds this rank has nothing left to contribute to, but that peers
	// with more assigned slices still need an AllGather answer for.
	for round := len(assigned); round < maxRounds; round++ {
		if err := waitForPeers(comm, levels); err != nil {
			return err
		}
	}

	comm.Barrier()

	if printInfo {
		prog.Done()
	}
	return nil
}

func processSlice(src source.ImageSource, stack *bbic.Stack, levels []*bbic.StackLevel, cfg Config, enc codec.ImageCodec, globalSlice int) ([][][][]byte, error) {
	sliceIndex := globalSlice
	if cfg.Reverse {
		sliceIndex = stack.NumSlices - 1 - globalSlice
	}
	im, err := src.Image(sliceIndex, cfg.PaddingValue)
	if err != nil {
		return nil, err
	}
	if cfg.LevelOffset > 0 {
		b := im.Bounds()
		w, h := shiftDims(b.Dx(), b.Dy(), cfg.LevelOffset)
		im = codec.Resize(im, w, h, cfg.Interp)
	}
	if cfg.Reverse {
		im = codec.Mirror(im)
	}
	return exportToTiles(im, levels, stack.TileSize, enc, cfg.Interp)
}

// shiftDims mirrors file.py's single level_offset resize: both dimensions
// collapse to (1, 1) together if the width alone would reach zero, rather
// than each axis clamping independently.
func shiftDims(w, h, levelOffset int) (int, int) {
	sw := w >> levelOffset
	if sw <= 0 {
		return 1, 1
	}
	return sw, h >> levelOffset
}

// exportToTiles splits im into levels[0]'s tile grid, halves it for the
// next level, and repeats, encoding every tile with enc. Mirrors
// bbic/file.py's _export_image_to_tiles.
func exportToTiles(im *image.Gray, levels []*bbic.StackLevel, tileSize int, enc codec.ImageCodec, interp codec.Interp) ([][][][]byte, error) {
	tiles := make([][][][]byte, len(levels))
	cur := im
	for l, level := range levels {
		tiles[l] = make([][][]byte, level.NumYTiles)
		for v := 0; v < level.NumYTiles; v++ {
			tiles[l][v] = make([][]byte, level.NumXTiles)
			y := v * tileSize
			for u := 0; u < level.NumXTiles; u++ {
				x := u * tileSize
				tile := codec.Crop(cur, x, y, tileSize, tileSize)
				data, err := enc.Encode(tile)
				if err != nil {
					return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "encoding tile (%d,%d) of level %d", u, v, level.Index)
				}
				tiles[l][v][u] = data
			}
		}
		if l+1 < len(levels) {
			w, h := codec.HalveDims(cur.Bounds().Dx(), cur.Bounds().Dy())
			cur = codec.Resize(cur, w, h, interp)
		}
	}
	return tiles, nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
