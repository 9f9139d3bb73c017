package project

import (
	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
)

// tileWrite is one encoded tile destined for a (u, v, sliceIndex) address
// of a level-0 StackLevel.
type tileWrite struct {
	U, V, Z int
	Data    []byte
}

type tileMeta struct {
	U, V, Z, Size int
}

// roundInfo is what one rank contributes to a round's AllGather: whether it
// had a block to contribute this round, and the sizes of every tile it is
// about to write to the left and upper stacks.
type roundInfo struct {
	Valid bool
	Left  []tileMeta
	Upper []tileMeta
}

func metasOf(writes []tileWrite) []tileMeta {
	out := make([]tileMeta, len(writes))
	for i, w := range writes {
		out[i] = tileMeta{U: w.U, V: w.V, Z: w.Z, Size: len(w.Data)}
	}
	return out
}

// allocateAndStore runs the pre-allocation protocol of spec.md §5, as it
// generalises to the cross-axis allocator: every rank's encoded tile sizes
// for its current round are exchanged via AllGather, every rank pre-creates
// the tile datasets any rank is about to write (regardless of ownership),
// then each rank writes only the tiles it produced locally. Grounded on
// internal/pyramid's allocateAndStore, adapted from a per-slice tile grid to
// a sparse list of (u, v, sliceIndex) addresses since cross-axis writes
// land scattered across the whole level rather than one slice at a time.
func allocateAndStore(comm cluster.Comm, left, upper *bbic.StackLevel, valid bool, leftWrites, upperWrites []tileWrite) error {
	info := roundInfo{Valid: valid, Left: metasOf(leftWrites), Upper: metasOf(upperWrites)}
	gathered := comm.AllGather(info)

	for _, g := range gathered {
		peer := g.(roundInfo)
		if !peer.Valid {
			continue
		}
		for _, m := range peer.Left {
			if err := left.AllocateTile(m.Size, m.U, m.V, m.Z); err != nil {
				return err
			}
		}
		for _, m := range peer.Upper {
			if err := upper.AllocateTile(m.Size, m.U, m.V, m.Z); err != nil {
				return err
			}
		}
	}

	if !valid {
		return nil
	}
	for _, w := range leftWrites {
		if err := left.StoreTile(w.Data, w.U, w.V, w.Z); err != nil {
			return err
		}
	}
	for _, w := range upperWrites {
		if err := upper.StoreTile(w.Data, w.U, w.V, w.Z); err != nil {
			return err
		}
	}
	return nil
}

// fillZAxisBorder patches the src_axis=2 border defect described in
// spec.md §4.3/§9: left's u=0 column and upper's v=0 row are inverted back
// to the one source block/plane that produces each address, and written
// directly, rather than relying on the forward per-block pass to reach
// them.
func fillZAxisBorder(src, left, upper *bbic.StackLevel, enc codec.ImageCodec) error {
	tileSize := src.TileSize

	leftBZ := left.NumXTiles - 1
	for lv := 0; lv < left.NumYTiles; lv++ {
		for lz := 0; lz < left.NumSlices; lz++ {
			if tileExists(left, 0, lv, lz) {
				continue
			}
			bu, i := lz/tileSize, lz%tileSize
			blk, err := src.GetBlock(bu, lv, leftBZ)
			if err != nil {
				return err
			}
			xtiles, err := blk.ToXTiles(enc, 2)
			if err != nil {
				return err
			}
			if i >= len(xtiles) {
				continue
			}
			data := xtiles[i]
			if err := left.AllocateTile(len(data), 0, lv, lz); err != nil {
				return err
			}
			if err := left.StoreTile(data, 0, lv, lz); err != nil {
				return err
			}
		}
	}

	upperBZ := upper.NumYTiles - 1
	for lu := 0; lu < upper.NumXTiles; lu++ {
		for lz := 0; lz < upper.NumSlices; lz++ {
			if tileExists(upper, lu, 0, lz) {
				continue
			}
			bv, i := lz/tileSize, lz%tileSize
			blk, err := src.GetBlock(lu, bv, upperBZ)
			if err != nil {
				return err
			}
			ytiles, err := blk.ToYTiles(enc, 2)
			if err != nil {
				return err
			}
			if i >= len(ytiles) {
				continue
			}
			data := ytiles[i]
			if err := upper.AllocateTile(len(data), lu, 0, lz); err != nil {
				return err
			}
			if err := upper.StoreTile(data, lu, 0, lz); err != nil {
				return err
			}
		}
	}
	return nil
}

func tileExists(level *bbic.StackLevel, u, v, sliceIndex int) bool {
	_, err := level.GetTile(u, v, sliceIndex)
	return err == nil
}
