package project

import "github.com/bluebrain/bbic/internal/bbic"

// leftTarget returns the (u, v, sliceIndex) address in the left stack's
// level 0 that tile i of a source block's ToXTiles output is deposited at,
// per the cross-axis index map of spec.md §4.3. B is the source block's
// grid position (bu, bv, bz); S is the source's tile size.
func leftTarget(srcAxis, bu, bv, bz, i, tileSize int, left *bbic.StackLevel) (u, v, z int) {
	switch srcAxis {
	case 0:
		return bz, bv, left.NumSlices - 1 - (i + bu*tileSize)
	case 1:
		return bv, bz, i + bu*tileSize
	default:
		return left.NumXTiles - 1 - bz, bv, i + bu*tileSize
	}
}

// upperTarget is the same for tile i of ToYTiles, deposited into the upper
// stack's level 0.
func upperTarget(srcAxis, bu, bv, bz, i, tileSize int, upper *bbic.StackLevel) (u, v, z int) {
	switch srcAxis {
	case 0:
		return bz, bu, i + bv*tileSize
	case 1:
		return bu, bz, upper.NumSlices - 1 - (i + bv*tileSize)
	default:
		return bu, upper.NumYTiles - 1 - bz, i + bv*tileSize
	}
}
