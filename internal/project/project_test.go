package project

import (
	"image"
	"image/color"
	"testing"

	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/pyramid"
	"github.com/bluebrain/bbic/internal/store"
	"github.com/stretchr/testify/require"
)

// constSource serves a solid-color w x h slice for every index, regardless
// of axis/rotation the cross-axis transform applies: a constant cube's
// projected pixels must still all equal that same constant, making it a
// rotation-agnostic correctness check.
type constSource struct {
	w, h, n int
	value   uint8
}

func (s *constSource) Dimensions() (int, int, int) { return s.w, s.h, s.n }

func (s *constSource) Image(index int, padding uint8) (*image.Gray, error) {
	im := image.NewGray(image.Rect(0, 0, s.w, s.h))
	for i := range im.Pix {
		im.Pix[i] = s.value
	}
	return im, nil
}

func buildSourceStack(t *testing.T, c *bbic.Container, w, h, n, tileSize int, value uint8) *bbic.Stack {
	t.Helper()
	stack, err := c.CreateStack(int(c.NumStacks))
	require.NoError(t, err)
	stack.Width, stack.Height, stack.NumSlices, stack.TileSize, stack.Format = w, h, n, tileSize, "PNG"
	src := &constSource{w: w, h: h, n: n, value: value}
	require.NoError(t, (pyramid.Builder{}).Write(cluster.NewLocal(), src, stack, pyramid.Config{
		Interp: codec.Nearest, GenerateLODs: false, Quiet: true,
	}))
	return stack
}

func requireAllPixelsEqual(t *testing.T, level *bbic.StackLevel, value uint8) {
	t.Helper()
	for slice := 0; slice < level.NumSlices; slice++ {
		im, err := level.GetImage(slice, 0)
		require.NoError(t, err)
		for _, p := range im.Pix {
			require.Equal(t, value, p)
		}
	}
}

// TestMakeAllStacksConstantCubePreservesValue builds a sagittal (axis 2)
// stack whose every voxel is the same value, projects it, and checks both
// perpendicular stacks read back that same constant everywhere — true
// regardless of the exact rotation/flip each axis applies.
func TestMakeAllStacksConstantCubePreservesValue(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	src := buildSourceStack(t, c, 8, 8, 8, 4, 77)

	left, upper, err := (Projector{}).MakeAllStacks(cluster.NewLocal(), c, src, 2, Config{Interp: codec.Nearest, Quiet: true})
	require.NoError(t, err)

	require.Equal(t, src.NumSlices, left.Width)
	require.Equal(t, src.Height, left.Height)
	require.Equal(t, src.Width, left.NumSlices)
	require.Equal(t, src.Width, upper.Width)
	require.Equal(t, src.NumSlices, upper.Height)
	require.Equal(t, src.Height, upper.NumSlices)

	leftLevel0, err := left.GetLevel(0)
	require.NoError(t, err)
	upperLevel0, err := upper.GetLevel(0)
	require.NoError(t, err)
	requireAllPixelsEqual(t, leftLevel0, 77)
	requireAllPixelsEqual(t, upperLevel0, 77)
}

// TestCrossAxisZAxisBorderFix regression-tests the src_axis=2 border defect
// of spec.md §4.3/§9 on a cube whose dims are not a multiple of tile_size,
// forcing partial edge blocks at the exact boundary the reference algorithm
// under-fills. Every tile of left's u=0 column and upper's v=0 row must
// exist and decode, and (since the source is a constant cube) must still
// read back the same value.
func TestCrossAxisZAxisBorderFix(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	src := buildSourceStack(t, c, 8, 8, 8, 3, 200)

	left, upper, err := (Projector{}).MakeAllStacks(cluster.NewLocal(), c, src, 2, Config{Interp: codec.Nearest, Quiet: true})
	require.NoError(t, err)

	leftLevel0, err := left.GetLevel(0)
	require.NoError(t, err)
	for lv := 0; lv < leftLevel0.NumYTiles; lv++ {
		for lz := 0; lz < leftLevel0.NumSlices; lz++ {
			im, err := leftLevel0.GetTile(0, lv, lz)
			require.NoErrorf(t, err, "left tile (0,%d,%d) missing", lv, lz)
			for _, p := range im.Pix {
				require.Equal(t, uint8(200), p)
			}
		}
	}

	upperLevel0, err := upper.GetLevel(0)
	require.NoError(t, err)
	for lu := 0; lu < upperLevel0.NumXTiles; lu++ {
		for lz := 0; lz < upperLevel0.NumSlices; lz++ {
			im, err := upperLevel0.GetTile(lu, 0, lz)
			require.NoErrorf(t, err, "upper tile (%d,0,%d) missing", lu, lz)
			for _, p := range im.Pix {
				require.Equal(t, uint8(200), p)
			}
		}
	}
}

// TestMakeAllStacksDimsAxis0AndAxis1 checks the target-dimension derivation
// table for the non-Z source axes and confirms LODs recurse when requested.
func TestMakeAllStacksDimsAxis0AndAxis1(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	src := buildSourceStack(t, c, 8, 8, 8, 4, 10)

	left, upper, err := (Projector{}).MakeAllStacks(cluster.NewLocal(), c, src, 0, Config{Interp: codec.Nearest, GenerateLODs: true, Quiet: true})
	require.NoError(t, err)
	require.Equal(t, src.NumSlices, left.Width)
	require.Equal(t, src.Height, left.Height)
	require.Equal(t, src.Width, left.NumSlices)
	require.Equal(t, src.NumSlices, upper.Width)
	require.Equal(t, src.Width, upper.Height)
	require.Equal(t, src.Height, upper.NumSlices)
	require.True(t, left.NumLevels > 1)
	require.True(t, upper.NumLevels > 1)

	left1, upper1, err := (Projector{}).MakeAllStacks(cluster.NewLocal(), c, src, 1, Config{Interp: codec.Nearest, GenerateLODs: true, Quiet: true})
	require.NoError(t, err)
	require.Equal(t, src.Height, left1.Width)
	require.Equal(t, src.NumSlices, left1.Height)
	require.Equal(t, src.Width, left1.NumSlices)
	require.Equal(t, src.Width, upper1.Width)
	require.Equal(t, src.NumSlices, upper1.Height)
	require.Equal(t, src.Height, upper1.NumSlices)
	require.True(t, left1.NumLevels > 1)
	require.True(t, upper1.NumLevels > 1)
}

// linearSource serves a slice whose every pixel encodes its own coordinate
// as v(x,y,z) = x + side*y + side*side*z, the S4 scenario fixture of
// spec.md §8 (mirrors block_test.go's linearCube): a cube whose voxel value
// encodes its own coordinates, so a misrouted axis produces a wrong value
// rather than one that coincidentally still matches.
type linearSource struct {
	side int
}

func (s *linearSource) Dimensions() (int, int, int) { return s.side, s.side, s.side }

func (s *linearSource) Image(z int, padding uint8) (*image.Gray, error) {
	im := image.NewGray(image.Rect(0, 0, s.side, s.side))
	for y := 0; y < s.side; y++ {
		for x := 0; x < s.side; x++ {
			im.SetGray(x, y, color.Gray{Y: uint8(x + s.side*y + s.side*s.side*z)})
		}
	}
	return im, nil
}

// TestMakeAllStacksCrossAxisRoutesEveryVoxel is scenario S4 of spec.md §8: an
// 8x8x8 cube with a distinct value per voxel, built as a sagittal (axis 2)
// stack and projected with --all-stacks. For every (x, y, z), the value read
// from the coronal (left) and axial (upper) stacks at the coordinates the
// cross-axis index map sends it to must equal the source voxel's value. A
// constant-valued cube (as in TestCrossAxisZAxisBorderFix) cannot catch a
// transposed or reflected axis, since every permutation of a constant reads
// back the same value; this is why that test only proves tile coverage and
// this one proves the index map itself.
//
// The expected destination of source voxel (x, y, z) follows from the
// ToXTiles/ToYTiles reorientation for src_axis=2 (internal/block) composed
// with the leftTarget/upperTarget tile placement (indexmap.go): the slice
// index carries straight through (left's slice = x, upper's slice = y).
// In left, z lands block-reversed and y locally mirrored within its tile;
// in upper, x carries straight through and z lands block-reversed and
// locally mirrored.
func TestMakeAllStacksCrossAxisRoutesEveryVoxel(t *testing.T) {
	const side, tileSize = 8, 4
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)

	src, err := c.CreateStack(int(c.NumStacks))
	require.NoError(t, err)
	src.Width, src.Height, src.NumSlices, src.TileSize, src.Format = side, side, side, tileSize, "PNG"
	require.NoError(t, (pyramid.Builder{}).Write(cluster.NewLocal(), &linearSource{side: side}, src, pyramid.Config{
		Interp: codec.Nearest, GenerateLODs: false, Quiet: true,
	}))

	left, upper, err := (Projector{}).MakeAllStacks(cluster.NewLocal(), c, src, 2, Config{Interp: codec.Nearest, Quiet: true})
	require.NoError(t, err)

	leftLevel0, err := left.GetLevel(0)
	require.NoError(t, err)
	upperLevel0, err := upper.GetLevel(0)
	require.NoError(t, err)

	leftImages := make(map[int]*image.Gray)
	getLeftImage := func(slice int) *image.Gray {
		if im, ok := leftImages[slice]; ok {
			return im
		}
		im, err := leftLevel0.GetImage(slice, 0)
		require.NoError(t, err)
		leftImages[slice] = im
		return im
	}
	upperImages := make(map[int]*image.Gray)
	getUpperImage := func(slice int) *image.Gray {
		if im, ok := upperImages[slice]; ok {
			return im
		}
		im, err := upperLevel0.GetImage(slice, 0)
		require.NoError(t, err)
		upperImages[slice] = im
		return im
	}

	for z := 0; z < side; z++ {
		bz, lz := z/tileSize, z%tileSize
		for y := 0; y < side; y++ {
			by, ly := y/tileSize, y%tileSize
			upperIm := getUpperImage(y)
			upperPy := (upperLevel0.NumYTiles-1-bz)*tileSize + (tileSize - 1 - lz)
			for x := 0; x < side; x++ {
				want := uint8(x + side*y + side*side*z)

				leftIm := getLeftImage(x)
				leftPx := (leftLevel0.NumXTiles-1-bz)*tileSize + lz
				leftPy := by*tileSize + (tileSize - 1 - ly)
				require.Equalf(t, want, leftIm.GrayAt(leftPx, leftPy).Y,
					"left stack mismatch for source voxel (%d,%d,%d)", x, y, z)

				require.Equalf(t, want, upperIm.GrayAt(x, upperPy).Y,
					"upper stack mismatch for source voxel (%d,%d,%d)", x, y, z)
			}
		}
	}
}
