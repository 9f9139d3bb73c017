package bbic

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/store"
	"github.com/stretchr/testify/require"
)

func newContainer(t *testing.T) *Container {
	t.Helper()
	c, err := Open(store.NewMemStore())
	require.NoError(t, err)
	return c
}

// TestStackLevelsS1ThreeSliceCube mirrors spec.md §8's S1 scenario: a 3-slice
// 4x4 all-zero stack with tile_size=2 should produce 2 levels, 2x2 tiles at
// level 0 and 1x1 at level 1, every decoded tile all-zero.
func TestStackLevelsS1ThreeSliceCube(t *testing.T) {
	c := newContainer(t)
	s, err := c.CreateStack(0)
	require.NoError(t, err)
	s.Width, s.Height, s.NumSlices, s.TileSize, s.Format = 4, 4, 3, 2, "PNG"
	s.SetAxis(AxisZ)
	require.NoError(t, s.writeAttrs())

	levels, err := s.CreateLevels(true)
	require.NoError(t, err)
	require.Equal(t, 2, s.NumLevels)
	require.Len(t, levels, 2)
	require.Equal(t, 2, levels[0].NumXTiles)
	require.Equal(t, 2, levels[0].NumYTiles)
	require.Equal(t, 1, levels[1].NumXTiles)
	require.Equal(t, 1, levels[1].NumYTiles)

	png, err := codec.NewCodec(codec.PNG)
	require.NoError(t, err)
	blank, err := png.Encode(codec.NewCanvas(2, 2, 0))
	require.NoError(t, err)

	for slice := 0; slice < s.NumSlices; slice++ {
		for v := 0; v < levels[0].NumYTiles; v++ {
			for u := 0; u < levels[0].NumXTiles; u++ {
				require.NoError(t, levels[0].AllocateTile(len(blank), u, v, slice))
				require.NoError(t, levels[0].StoreTile(blank, u, v, slice))
			}
		}
	}

	im, err := levels[0].GetTile(0, 0, 0)
	require.NoError(t, err)
	for _, p := range im.Pix {
		require.Equal(t, uint8(0), p)
	}
}

// TestStackS3LODDisable mirrors S3: --no-lods leaves only level 0.
func TestStackS3LODDisable(t *testing.T) {
	c := newContainer(t)
	s, err := c.CreateStack(0)
	require.NoError(t, err)
	s.Width, s.Height, s.NumSlices, s.TileSize, s.Format = 8, 8, 1, 2, "PNG"
	require.NoError(t, s.writeAttrs())

	levels, err := s.CreateLevels(false)
	require.NoError(t, err)
	require.Equal(t, 1, s.NumLevels)
	require.Len(t, levels, 1)
}

// TestVolumeS6LODDimensions mirrors S6: 100x64x48 at block_size=32 produces
// 7 LODs, with the exact block counts and dimensions the spec lists.
func TestVolumeS6LODDimensions(t *testing.T) {
	c := newContainer(t)
	v, err := c.CreateVolume(0)
	require.NoError(t, err)
	v.Width, v.Height, v.Depth, v.BlockSize = 100, 64, 48, 32
	require.NoError(t, v.writeAttrs())

	require.Equal(t, 7, v.LODCount())

	nx, ny, nz := v.BlockCount(0)
	require.Equal(t, 4, nx)
	require.Equal(t, 2, ny)
	require.Equal(t, 2, nz)

	w1, h1, d1 := v.Dimensions(1)
	require.Equal(t, 50, w1)
	require.Equal(t, 32, h1)
	require.Equal(t, 24, d1)

	nx1, ny1, nz1 := v.BlockCount(1)
	require.Equal(t, 2, nx1)
	require.Equal(t, 1, ny1)
	require.Equal(t, 1, nz1)

	lod1, err := v.CreateLOD(1, true)
	require.NoError(t, err)
	b, err := lod1.GetBlock(0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 32, b.Width)
	require.Equal(t, 32, b.Height)
	require.Equal(t, 24, b.Depth) // depth=24 < block_size: last z block clipped

	raw, err := c.Store.ReadDataset("bbic/volumes/0/levels/1/0/0/0")
	require.NoError(t, err)
	require.Len(t, raw, 32*32*32) // dataset is always a full block_size^3 cube
}

// TestVolumeLODPutBlockRoundTrip checks PutBlock/GetBlock fidelity for a
// border block narrower than a full cube.
func TestVolumeLODPutBlockRoundTrip(t *testing.T) {
	c := newContainer(t)
	v, err := c.CreateVolume(0)
	require.NoError(t, err)
	v.Width, v.Height, v.Depth, v.BlockSize = 10, 10, 10, 8
	require.NoError(t, v.writeAttrs())

	lod0, err := v.CreateLOD(0, false)
	require.NoError(t, err)

	b, err := lod0.GetBlock(1, 1, 1) // border block: only 2x2x2 valid
	require.NoError(t, err)
	require.Equal(t, 2, b.Width)
	require.Equal(t, 2, b.Height)
	require.Equal(t, 2, b.Depth)
	b.Set(0, 0, 0, 42)
	require.NoError(t, lod0.PutBlock(b))

	b2, err := lod0.GetBlock(1, 1, 1)
	require.NoError(t, err)
	require.Equal(t, uint8(42), b2.At(0, 0, 0))
}

func TestAxisLocalToWorldZIsIdentityTranslation(t *testing.T) {
	m := LocalToWorld(8, 8, 8, AxisZ)
	require.Equal(t, float64(-4), m[3])
	require.Equal(t, float64(-4), m[7])
	require.Equal(t, float64(-4), m[11])
	require.Equal(t, float64(1), m[15])
}

// TestVolumeLODExtractSlicesAllAxes fills a non-cubic, border-clipped volume
// with a constant value and checks that extraction along each axis produces
// the right slice count and per-image dimensions, every pixel equal to the
// fill value.
func TestVolumeLODExtractSlicesAllAxes(t *testing.T) {
	c := newContainer(t)
	v, err := c.CreateVolume(0)
	require.NoError(t, err)
	v.Width, v.Height, v.Depth, v.BlockSize = 10, 6, 14, 4
	require.NoError(t, v.writeAttrs())

	lod0, err := v.CreateLOD(0, true)
	require.NoError(t, err)
	for z := 0; z < lod0.NumBlocksZ; z++ {
		for y := 0; y < lod0.NumBlocksY; y++ {
			for x := 0; x < lod0.NumBlocksX; x++ {
				b, err := lod0.GetBlock(x, y, z)
				require.NoError(t, err)
				for i := range b.Vol {
					b.Vol[i] = 9
				}
				require.NoError(t, lod0.PutBlock(b))
			}
		}
	}

	cases := []struct {
		axis            int
		numSlices, w, h int
	}{
		{axis: 0, numSlices: v.Depth, w: v.Width, h: v.Height},
		{axis: 1, numSlices: v.Height, w: v.Width, h: v.Depth},
		{axis: 2, numSlices: v.Width, w: v.Height, h: v.Depth},
	}
	for _, tc := range cases {
		dir := t.TempDir()
		require.NoError(t, lod0.ExtractSlices(dir, codec.PNG, tc.axis))

		for i := 0; i < tc.numSlices; i++ {
			path := filepath.Join(dir, fmt.Sprintf("%d.png", i))
			f, err := os.Open(path)
			require.NoErrorf(t, err, "axis %d slice %d", tc.axis, i)
			im, err := png.Decode(f)
			require.NoError(t, err)
			f.Close()
			require.Equal(t, tc.w, im.Bounds().Dx())
			require.Equal(t, tc.h, im.Bounds().Dy())
			gray := im.(*image.Gray)
			for _, p := range gray.Pix {
				require.Equal(t, uint8(9), p)
			}
		}
	}
}
