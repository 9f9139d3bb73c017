// Package volumebuild implements the Volume Pyramid Builder of spec.md §4.4:
// filling a Volume's block octree from a source of cubic blocks, and
// building every lower-resolution LOD from the one above it.
//
// Grounded on bbic/volume.py's Volume.fill/_fill_lods and VolumeLOD.fill's
// three block-size reconciliation branches.
package volumebuild

import (
	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/block"
)

// Filler builds a Volume's full LOD chain from a block.Provider source.
type Filler struct{}

// Fill sets volume's dimensions and block size from source, creates every
// LOD the resulting dimensions call for, fills LOD 0 directly from source,
// and derives each subsequent LOD from the one before it via Downsampler.
func (Filler) Fill(volume *bbic.Volume, source block.Provider, blockSize int) error {
	if err := volume.SetDimensionsFromSource(source, blockSize); err != nil {
		return err
	}

	lodCount := volume.LODCount()
	lods := make([]*bbic.VolumeLOD, lodCount)
	for level := 0; level < lodCount; level++ {
		lod, err := volume.CreateLOD(level, true)
		if err != nil {
			return err
		}
		lods[level] = lod
	}

	if err := fillLOD(lods[0], source); err != nil {
		return err
	}
	for level := 1; level < lodCount; level++ {
		if err := fillLOD(lods[level], NewDownsampler(lods[level-1])); err != nil {
			return err
		}
	}
	return nil
}

// fillLOD dispatches to one of the three block-size reconciliation cases of
// VolumeLOD.fill, depending on how source's block size compares to lod's.
func fillLOD(lod *bbic.VolumeLOD, source block.Provider) error {
	sw, sh, sd := source.Dimensions()
	lw, lh, ld := lod.Dimensions()
	if sw != lw || sh != lh || sd != ld {
		return bbicerr.New(bbicerr.IncompatibleSize,
			"fill source dims (%d,%d,%d) do not match LOD %d dims (%d,%d,%d)",
			sw, sh, sd, lod.Level, lw, lh, ld)
	}

	switch srcSize := source.BlockSize(); {
	case srcSize == lod.BlockSize():
		return fillEqual(lod, source)
	case srcSize > lod.BlockSize():
		return fillSourceLarger(lod, source)
	default:
		return fillSourceSmaller(lod, source)
	}
}

// fillEqual handles matching block sizes: every target block is exactly one
// source block, written straight through with no intermediate read.
func fillEqual(lod *bbic.VolumeLOD, source block.Provider) error {
	for z := 0; z < lod.NumBlocksZ; z++ {
		for v := 0; v < lod.NumBlocksY; v++ {
			for u := 0; u < lod.NumBlocksX; u++ {
				b, err := source.GetBlock(u, v, z)
				if err != nil {
					return err
				}
				if err := lod.PutBlock(b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// fillSourceLarger handles a source block size that is a multiple of the
// target's: each source block is split into target-sized subblocks, every
// one written directly at its scaled-up grid position.
func fillSourceLarger(lod *bbic.VolumeLOD, source block.Provider) error {
	srcSize := source.BlockSize()
	if srcSize%lod.BlockSize() != 0 {
		return bbicerr.New(bbicerr.IncompatibleSize,
			"source block size %d is not a multiple of target block size %d", srcSize, lod.BlockSize())
	}
	stride := srcSize / lod.BlockSize()
	sw, sh, sd := source.Dimensions()
	nxS, nyS, nzS := ceilDiv(sw, srcSize), ceilDiv(sh, srcSize), ceilDiv(sd, srcSize)

	for z := 0; z < nzS; z++ {
		for v := 0; v < nyS; v++ {
			for u := 0; u < nxS; u++ {
				b, err := source.GetBlock(u, v, z)
				if err != nil {
					return err
				}
				subs, err := b.Split(lod.BlockSize())
				if err != nil {
					return err
				}
				for _, sub := range subs {
					sub.U = sub.U + u*stride
					sub.V = sub.V + v*stride
					sub.Z = sub.Z + z*stride
					if err := lod.PutBlock(sub); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// fillSourceSmaller handles a target block size that is a multiple of the
// source's: every target block is assembled from a cube of source blocks
// via Block.Fill, then persisted.
func fillSourceSmaller(lod *bbic.VolumeLOD, source block.Provider) error {
	srcSize := source.BlockSize()
	if lod.BlockSize()%srcSize != 0 {
		return bbicerr.New(bbicerr.IncompatibleSize,
			"target block size %d is not a multiple of source block size %d", lod.BlockSize(), srcSize)
	}
	stride := lod.BlockSize() / srcSize

	for z := 0; z < lod.NumBlocksZ; z++ {
		for v := 0; v < lod.NumBlocksY; v++ {
			for u := 0; u < lod.NumBlocksX; u++ {
				b, err := lod.GetBlock(u, v, z)
				if err != nil {
					return err
				}
				if err := b.Fill(source, u*stride, v*stride, z*stride); err != nil {
					return err
				}
				if err := lod.PutBlock(b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
