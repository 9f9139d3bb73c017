// Package project implements the CrossAxisProjector of spec.md §4.3: given a
// stack fully built along one axis, it synthesises level 0 of the two
// perpendicular stacks by re-slicing cubic blocks of the source, then
// recurses internal/pyramid's TilePyramidBuilder to fill their remaining
// LODs. Grounded on bbic/file.py's make_all_stacks and
// services/bbic_stack/bbic/data_block.py's to_x_tiles/to_y_tiles, which
// internal/block already implements.
package project

import (
	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/pyramid"
)

// Config configures one MakeAllStacks call.
type Config struct {
	Interp       codec.Interp
	GenerateLODs bool
	Quiet        bool
}

// Projector builds the two stacks perpendicular to an already-built source
// stack's axis.
type Projector struct{}

// MakeAllStacks produces the left-face and upper-face stacks of src
// (src_axis identifies which of the three orthogonal axes src is stacked
// along: 0=X, 1=Y, 2=Z), per the target-dimension derivation table and
// cross-axis index map of spec.md §4.3.
func (Projector) MakeAllStacks(comm cluster.Comm, container *bbic.Container, src *bbic.Stack, srcAxis int, cfg Config) (left, upper *bbic.Stack, err error) {
	if srcAxis < 0 || srcAxis > 2 {
		return nil, nil, bbicerr.New(bbicerr.InvalidArgument, "source axis %d out of range", srcAxis)
	}
	srcLevel, err := src.GetLevel(0)
	if err != nil {
		return nil, nil, err
	}
	enc, err := src.Codec()
	if err != nil {
		return nil, nil, err
	}

	leftW, leftH, leftN, leftAxis, upperW, upperH, upperN, upperAxis := targetDims(srcAxis, src)

	left, err = newProjectedStack(container, src, leftW, leftH, leftN, leftAxis)
	if err != nil {
		return nil, nil, err
	}
	upper, err = newProjectedStack(container, src, upperW, upperH, upperN, upperAxis)
	if err != nil {
		return nil, nil, err
	}

	leftLevels, err := left.CreateLevels(cfg.GenerateLODs)
	if err != nil {
		return nil, nil, err
	}
	upperLevels, err := upper.CreateLevels(cfg.GenerateLODs)
	if err != nil {
		return nil, nil, err
	}
	leftLevel0, upperLevel0 := leftLevels[0], upperLevels[0]

	tileSize := src.TileSize
	nu, nv, nz := srcLevel.GetBlockCount()
	total := nu * nv * nz
	size, rank := comm.Size(), comm.Rank()

	var assigned []int
	for idx := rank; idx < total; idx += size {
		assigned = append(assigned, idx)
	}
	maxRounds := ceilDiv(total, size)

	for _, idx := range assigned {
		bu, bv, bz := unravel(idx, nu, nv)
		blk, err := srcLevel.GetBlock(bu, bv, bz)
		if err != nil {
			return nil, nil, err
		}
		xtiles, err := blk.ToXTiles(enc, srcAxis)
		if err != nil {
			return nil, nil, err
		}
		ytiles, err := blk.ToYTiles(enc, srcAxis)
		if err != nil {
			return nil, nil, err
		}

		leftWrites := make([]tileWrite, len(xtiles))
		for i, data := range xtiles {
			u, v, z := leftTarget(srcAxis, bu, bv, bz, i, tileSize, leftLevel0)
			leftWrites[i] = tileWrite{U: u, V: v, Z: z, Data: data}
		}
		upperWrites := make([]tileWrite, len(ytiles))
		for i, data := range ytiles {
			u, v, z := upperTarget(srcAxis, bu, bv, bz, i, tileSize, upperLevel0)
			upperWrites[i] = tileWrite{U: u, V: v, Z: z, Data: data}
		}
		if err := allocateAndStore(comm, leftLevel0, upperLevel0, true, leftWrites, upperWrites); err != nil {
			return nil, nil, err
		}
	}
	for round := len(assigned); round < maxRounds; round++ {
		if err := allocateAndStore(comm, leftLevel0, upperLevel0, false, nil, nil); err != nil {
			return nil, nil, err
		}
	}
	comm.Barrier()

	// Known defect (spec.md §9 Open Question 1): for src_axis=2 the
	// reflected u/v of the index map above never enumerates the full
	// range at the edge block where B.z sits at the far end of the
	// source's z-block grid, leaving left's u=0 column and upper's v=0
	// row partially unwritten. Fixed here by iterating those destination
	// addresses directly and inverting the map to find the source tile
	// that belongs there, rather than relying on the forward per-block
	// pass to reach them.
	if srcAxis == 2 {
		if comm.Rank() == 0 {
			if err := fillZAxisBorder(srcLevel, leftLevel0, upperLevel0, enc); err != nil {
				return nil, nil, err
			}
		}
		comm.Barrier()
	}

	if cfg.GenerateLODs {
		if len(leftLevels) > 1 {
			if err := (pyramid.Builder{}).Write(comm, &levelImageSource{leftLevel0}, left, pyramid.Config{
				Interp: cfg.Interp, LevelOffset: 1, GenerateLODs: true, Quiet: cfg.Quiet,
			}); err != nil {
				return nil, nil, err
			}
		}
		if len(upperLevels) > 1 {
			if err := (pyramid.Builder{}).Write(comm, &levelImageSource{upperLevel0}, upper, pyramid.Config{
				Interp: cfg.Interp, LevelOffset: 1, GenerateLODs: true, Quiet: cfg.Quiet,
			}); err != nil {
				return nil, nil, err
			}
		}
	}

	return left, upper, nil
}

func newProjectedStack(container *bbic.Container, src *bbic.Stack, w, h, n int, axis bbic.Axis) (*bbic.Stack, error) {
	idx := int(container.NumStacks)
	s, err := container.CreateStack(idx)
	if err != nil {
		return nil, err
	}
	s.Width, s.Height, s.NumSlices = w, h, n
	s.TileSize = src.TileSize
	s.Format = src.Format
	s.SetAxis(axis)
	return s, nil
}

// targetDims returns the left and upper face stacks' derived dimensions and
// axes, per spec.md §4.3's derivation table.
func targetDims(srcAxis int, src *bbic.Stack) (leftW, leftH, leftN int, leftAxis bbic.Axis, upperW, upperH, upperN int, upperAxis bbic.Axis) {
	switch srcAxis {
	case 0: // X
		return src.NumSlices, src.Height, src.Width, bbic.AxisZ,
			src.NumSlices, src.Width, src.Height, bbic.AxisY
	case 1: // Y
		return src.Height, src.NumSlices, src.Width, bbic.AxisZ,
			src.Width, src.NumSlices, src.Height, bbic.AxisX
	default: // Z
		return src.NumSlices, src.Height, src.Width, bbic.AxisY,
			src.Width, src.NumSlices, src.Height, bbic.AxisX
	}
}

func unravel(idx, nu, nv int) (u, v, z int) {
	u = idx % nu
	rem := idx / nu
	v = rem % nv
	z = rem / nv
	return
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
