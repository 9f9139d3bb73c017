package pyramid

import (
	"image"
	"sync"
	"testing"

	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeSource serves one solid-gray slice per index, sized w x h, with no
// padding logic of its own (every test stack is sized to exactly match).
type fakeSource struct {
	w, h, n int
	value   func(slice int) uint8
}

func (s *fakeSource) Dimensions() (int, int, int) { return s.w, s.h, s.n }

func (s *fakeSource) Image(index int, padding uint8) (*image.Gray, error) {
	im := image.NewGray(image.Rect(0, 0, s.w, s.h))
	v := s.value(index)
	for i := range im.Pix {
		im.Pix[i] = v
	}
	return im, nil
}

func newTestStack(t *testing.T, c *bbic.Container, w, h, numSlices, tileSize int) *bbic.Stack {
	t.Helper()
	s, err := c.CreateStack(0)
	require.NoError(t, err)
	s.Width, s.Height, s.NumSlices, s.TileSize, s.Format = w, h, numSlices, tileSize, "PNG"
	return s
}

// TestWriteS1ThreeSliceCube mirrors spec.md §8's S1: 3 all-zero 4x4 slices,
// tile_size=2, generate_lods=true produces 2 levels with the expected tile
// grids and all-zero decoded tiles.
func TestWriteS1ThreeSliceCube(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	stack := newTestStack(t, c, 4, 4, 3, 2)

	src := &fakeSource{w: 4, h: 4, n: 3, value: func(int) uint8 { return 0 }}
	require.NoError(t, (Builder{}).Write(cluster.NewLocal(), src, stack, Config{Interp: codec.Nearest, GenerateLODs: true, Quiet: true}))

	require.Equal(t, 2, stack.NumLevels)
	level0, err := stack.GetLevel(0)
	require.NoError(t, err)
	require.Equal(t, 2, level0.NumXTiles)
	require.Equal(t, 2, level0.NumYTiles)
	level1, err := stack.GetLevel(1)
	require.NoError(t, err)
	require.Equal(t, 1, level1.NumXTiles)
	require.Equal(t, 1, level1.NumYTiles)

	for slice := 0; slice < 3; slice++ {
		im, err := level0.GetImage(slice, 0)
		require.NoError(t, err)
		for _, p := range im.Pix {
			require.Equal(t, uint8(0), p)
		}
	}
}

// TestWriteS3LODDisable mirrors S3: GenerateLODs=false leaves only level 0.
func TestWriteS3LODDisable(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	stack := newTestStack(t, c, 8, 8, 2, 4)

	src := &fakeSource{w: 8, h: 8, n: 2, value: func(int) uint8 { return 200 }}
	require.NoError(t, (Builder{}).Write(cluster.NewLocal(), src, stack, Config{Interp: codec.Nearest, GenerateLODs: false, Quiet: true}))

	require.Equal(t, 1, stack.NumLevels)
}

// TestWriteProperty1BaseLevelMatchesSource exercises Property 1 of spec.md
// §8: level(0).get_image(s) must agree pixel-wise with the source image
// (post padding) for every slice.
func TestWriteProperty1BaseLevelMatchesSource(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	stack := newTestStack(t, c, 6, 6, 4, 3)

	src := &fakeSource{w: 6, h: 6, n: 4, value: func(slice int) uint8 { return uint8(10 * (slice + 1)) }}
	require.NoError(t, (Builder{}).Write(cluster.NewLocal(), src, stack, Config{Interp: codec.Nearest, GenerateLODs: true, Quiet: true}))

	level0, err := stack.GetLevel(0)
	require.NoError(t, err)
	for slice := 0; slice < 4; slice++ {
		want, err := src.Image(slice, 0)
		require.NoError(t, err)
		got, err := level0.GetImage(slice, 0)
		require.NoError(t, err)
		require.Equal(t, want.Pix, got.Pix)
	}
}

// TestWriteDistributesAcrossRanks runs the same stack build split across
// two in-process ranks and checks the result is identical to single-rank,
// exercising the collective-safety AllGather/AllocateTile protocol end to
// end (Property 8).
func TestWriteDistributesAcrossRanks(t *testing.T) {
	c, err := bbic.Open(store.NewMemStore())
	require.NoError(t, err)
	stack := newTestStack(t, c, 4, 4, 5, 2)
	// Persist the stack's attrs once before forking: each rank below opens
	// its own *bbic.Stack handle (mirroring separate MPI processes opening
	// the same file), rather than sharing this one across goroutines, since
	// CreateLevels mutates in-memory Stack fields with no synchronization of
	// its own.
	_, err = stack.CreateLevels(false)
	require.NoError(t, err)

	comms := cluster.NewInProcess(2)
	src := &fakeSource{w: 4, h: 4, n: 5, value: func(slice int) uint8 { return uint8(slice * 5) }}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for r := 0; r < 2; r++ {
		go func(r int) {
			defer wg.Done()
			rankStack, err := c.GetStack(0)
			if err != nil {
				errs[r] = err
				return
			}
			errs[r] = (Builder{}).Write(comms[r], src, rankStack, Config{Interp: codec.Nearest, GenerateLODs: false, Quiet: true, Concurrency: 2})
		}(r)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	level0, err := stack.GetLevel(0)
	require.NoError(t, err)
	for slice := 0; slice < 5; slice++ {
		want, err := src.Image(slice, 0)
		require.NoError(t, err)
		got, err := level0.GetImage(slice, 0)
		require.NoError(t, err)
		require.Equal(t, want.Pix, got.Pix)
	}
}
