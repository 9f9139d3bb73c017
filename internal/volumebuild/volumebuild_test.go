package volumebuild

import (
	"testing"

	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/block"
	"github.com/bluebrain/bbic/internal/store"
	"github.com/stretchr/testify/require"
)

// constBlocks is a block.Provider serving a constant value for every block,
// useful for correctness checks independent of the exact reconciliation
// branch exercised.
type constBlocks struct {
	w, h, d, blockSize int
	value              uint8
}

func (s *constBlocks) BlockSize() int { return s.blockSize }

func (s *constBlocks) Dimensions() (int, int, int) { return s.w, s.h, s.d }

func (s *constBlocks) GetBlock(u, v, z int) (*block.Block, error) {
	b := block.New(u, v, z, s.blockSize)
	b.AllocateAndSet(s.blockSize, s.blockSize, s.blockSize, s.value)
	return b, nil
}

func requireLODConstant(t *testing.T, lod *bbic.VolumeLOD, value uint8) {
	t.Helper()
	for z := 0; z < lod.NumBlocksZ; z++ {
		for v := 0; v < lod.NumBlocksY; v++ {
			for u := 0; u < lod.NumBlocksX; u++ {
				b, err := lod.GetBlock(u, v, z)
				require.NoError(t, err)
				for i := range b.Vol {
					require.Equalf(t, value, b.Vol[i], "block (%d,%d,%d) voxel %d", u, v, z, i)
				}
			}
		}
	}
}

func TestFillEqualBlockSizeAllLODsConstant(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	volume, err := c.CreateVolume(0)
	require.NoError(t, err)

	src := &constBlocks{w: 16, h: 16, d: 16, blockSize: 4, value: 42}
	require.NoError(t, (Filler{}).Fill(volume, src, 4))

	require.Equal(t, 16, volume.Width)
	require.True(t, volume.LODCount() > 1)

	for level := 0; level < volume.LODCount(); level++ {
		lod, err := volume.GetLOD(level)
		require.NoError(t, err)
		requireLODConstant(t, lod, 42)
	}
}

func TestFillSourceBlockLargerThanTarget(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	volume, err := c.CreateVolume(0)
	require.NoError(t, err)

	// Source blocks are 8-cubed, target block size is 4: each source block
	// splits into 2x2x2 target-sized subblocks.
	src := &constBlocks{w: 16, h: 16, d: 16, blockSize: 8, value: 7}
	require.NoError(t, (Filler{}).Fill(volume, src, 4))

	lod0, err := volume.GetLOD(0)
	require.NoError(t, err)
	require.Equal(t, 4, lod0.NumBlocksX)
	requireLODConstant(t, lod0, 7)
}

func TestFillSourceBlockSmallerThanTarget(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	volume, err := c.CreateVolume(0)
	require.NoError(t, err)

	// Source blocks are 2-cubed, target block size is 8: each target block
	// is assembled from a 4x4x4 cube of source blocks.
	src := &constBlocks{w: 16, h: 16, d: 16, blockSize: 2, value: 99}
	require.NoError(t, (Filler{}).Fill(volume, src, 8))

	lod0, err := volume.GetLOD(0)
	require.NoError(t, err)
	require.Equal(t, 2, lod0.NumBlocksX)
	requireLODConstant(t, lod0, 99)
}

func TestFillBorderBlocksClippedDimensions(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	volume, err := c.CreateVolume(0)
	require.NoError(t, err)

	// 10 is not a multiple of 4: the last block on every axis is a
	// partial (2-deep) border block.
	src := &constBlocks{w: 10, h: 10, d: 10, blockSize: 4, value: 5}
	require.NoError(t, (Filler{}).Fill(volume, src, 4))

	lod0, err := volume.GetLOD(0)
	require.NoError(t, err)
	require.Equal(t, 3, lod0.NumBlocksX)
	b, err := lod0.GetBlock(2, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 2, b.Width)
	require.Equal(t, 2, b.Height)
	require.Equal(t, 2, b.Depth)
	requireLODConstant(t, lod0, 5)
}

func TestDownsamplerPreservesConstantValue(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	volume, err := c.CreateVolume(0)
	require.NoError(t, err)

	src := &constBlocks{w: 32, h: 32, d: 32, blockSize: 4, value: 200}
	require.NoError(t, (Filler{}).Fill(volume, src, 4))

	for level := 1; level < volume.LODCount(); level++ {
		lod, err := volume.GetLOD(level)
		require.NoError(t, err)
		requireLODConstant(t, lod, 200)
	}
}

func TestDownsamplerDimensionsHalveEachLOD(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	volume, err := c.CreateVolume(0)
	require.NoError(t, err)
	src := &constBlocks{w: 16, h: 16, d: 16, blockSize: 4, value: 1}
	require.NoError(t, (Filler{}).Fill(volume, src, 4))

	lod1, err := volume.GetLOD(1)
	require.NoError(t, err)
	w, h, dep := lod1.Dimensions()
	require.Equal(t, 8, w)
	require.Equal(t, 8, h)
	require.Equal(t, 8, dep)
}

func TestMedian8ReturnsUpperMiddleOfSortedValues(t *testing.T) {
	w := [8]uint8{5, 3, 8, 1, 9, 2, 7, 4}
	// sorted: 1 2 3 4 5 7 8 9 -> index 4 is 5
	require.Equal(t, uint8(5), median8(w))
}

func TestCeilHalf(t *testing.T) {
	require.Equal(t, 3, ceilHalf(5))
	require.Equal(t, 2, ceilHalf(4))
	require.Equal(t, 1, ceilHalf(1))
	require.Equal(t, 0, ceilHalf(0))
}
