package pyramid

import (
	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/cluster"
)

// tileSizes is one slice's encoded tile byte lengths, indexed [level][v][u].
type tileSizes [][][]int

// allocationInfo is what one rank contributes to a round's AllGather: the
// global slice index it produced (or -1, if this rank had nothing left to
// contribute this round) and the size of every tile it is about to write.
type allocationInfo struct {
	SliceIndex int
	Sizes      tileSizes
}

func sizesOf(levels []*bbic.StackLevel, tiles [][][][]byte) tileSizes {
	sizes := make(tileSizes, len(levels))
	for l, level := range levels {
		sizes[l] = make([][]int, level.NumYTiles)
		for v := range sizes[l] {
			sizes[l][v] = make([]int, level.NumXTiles)
			for u := range sizes[l][v] {
				if tiles[l][v][u] != nil {
					sizes[l][v][u] = len(tiles[l][v][u])
				}
			}
		}
	}
	return sizes
}

// emptyTiles allocates a zero-filled [level][v][u][]byte grid matching each
// level's tile grid, used by a rank that has run out of local slices but
// must still participate in the round's collective.
func emptyTiles(levels []*bbic.StackLevel) [][][][]byte {
	tiles := make([][][][]byte, len(levels))
	for l, level := range levels {
		tiles[l] = make([][][]byte, level.NumYTiles)
		for v := range tiles[l] {
			tiles[l][v] = make([][]byte, level.NumXTiles)
		}
	}
	return tiles
}

// allocateAndStore runs the pre-allocation protocol of spec.md §5: every
// rank's encoded tile sizes for its current round are exchanged via
// AllGather, every rank pre-creates (AllocateTile) the tile datasets any
// rank is about to write regardless of ownership, then each rank writes
// only the tiles it produced locally. Grounded on bbic/file.py's
// _all_store_tiles, adapted from its index-arithmetic reconstruction of
// which slice each gathered entry belongs to (which relies on every rank
// advancing through rounds in perfect lockstep) to an explicit
// (sliceIndex, sizes) pair per rank, which needs no such assumption.
func allocateAndStore(comm cluster.Comm, levels []*bbic.StackLevel, localSliceIndex int, localTiles [][][][]byte) error {
	info := allocationInfo{SliceIndex: localSliceIndex, Sizes: sizesOf(levels, localTiles)}
	gathered := comm.AllGather(info)

	for _, g := range gathered {
		peer := g.(allocationInfo)
		if peer.SliceIndex < 0 {
			continue
		}
		for l, level := range levels {
			if peer.SliceIndex >= level.NumSlices {
				continue
			}
			for v := 0; v < level.NumYTiles; v++ {
				for u := 0; u < level.NumXTiles; u++ {
					if sz := peer.Sizes[l][v][u]; sz > 0 {
						if err := level.AllocateTile(sz, u, v, peer.SliceIndex); err != nil {
							return err
						}
					}
				}
			}
		}
	}

	if localSliceIndex < 0 {
		return nil
	}
	for l, level := range levels {
		if localSliceIndex >= level.NumSlices {
			continue
		}
		for v := 0; v < level.NumYTiles; v++ {
			for u := 0; u < level.NumXTiles; u++ {
				if data := localTiles[l][v][u]; len(data) > 0 {
					if err := level.StoreTile(data, u, v, localSliceIndex); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// waitForPeers participates in every remaining round with nothing to
// contribute, so ranks still processing slices can complete their
// collectives. Mirrors bbic/file.py's _wait_all.
func waitForPeers(comm cluster.Comm, levels []*bbic.StackLevel) error {
	return allocateAndStore(comm, levels, -1, emptyTiles(levels))
}
