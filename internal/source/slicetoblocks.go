package source

import (
	"github.com/bluebrain/bbic/internal/block"
)

// SliceToBlocks adapts an ImageSource into a block.Provider by reading
// block_size consecutive full-width/height slices into one depth slab,
// then slicing block_size x block_size windows out of it. Grounded on
// services/bbic_stack/bbic/slice_to_blocks.py's SliceToBlocks/Slice: the
// Python keeps a single cached slab (self.slice) and rebuilds it whenever
// a caller asks for a different z, which is exactly the access pattern
// internal/volumebuild's Volume.Fill walks (u, v varying fastest for a
// fixed z) so the one-slot cache avoids re-decoding every source image once
// per block column.
type SliceToBlocks struct {
	source    ImageSource
	blockSize int

	cachedZ    int
	cacheValid bool
	slab       []uint8 // (blockSize, height, width) C-contiguous, like the Python's self.data
}

// NewSliceToBlocks returns a block.Provider reading blockSize-deep slabs
// from source.
func NewSliceToBlocks(source ImageSource, blockSize int) *SliceToBlocks {
	return &SliceToBlocks{source: source, blockSize: blockSize}
}

func (s *SliceToBlocks) BlockSize() int { return s.blockSize }

func (s *SliceToBlocks) Dimensions() (int, int, int) {
	return s.source.Dimensions()
}

func (s *SliceToBlocks) GetBlock(u, v, z int) (*block.Block, error) {
	if !s.cacheValid || s.cachedZ != z {
		if err := s.readSlab(z); err != nil {
			return nil, err
		}
	}

	width, height, _ := s.source.Dimensions()
	b := block.New(u, v, z, s.blockSize)
	b.AllocateAndSet(s.blockSize, s.blockSize, s.blockSize, 0)

	x := u * s.blockSize
	y := v * s.blockSize
	endX := min(x+s.blockSize, width)
	endY := min(y+s.blockSize, height)
	dx := endX - x
	dy := endY - y
	for zz := 0; zz < s.blockSize; zz++ {
		for yy := 0; yy < dy; yy++ {
			for xx := 0; xx < dx; xx++ {
				b.Set(xx, yy, zz, s.slab[(zz*height+(y+yy))*width+(x+xx)])
			}
		}
	}
	return b, nil
}

func (s *SliceToBlocks) readSlab(z int) error {
	width, height, numSlices := s.source.Dimensions()
	sliceStart := z * s.blockSize
	sliceEnd := min(sliceStart+s.blockSize, numSlices)

	s.slab = make([]uint8, s.blockSize*height*width)
	for slice := sliceStart; slice < sliceEnd; slice++ {
		im, err := s.source.Image(slice, 0)
		if err != nil {
			return err
		}
		plane := slice - sliceStart
		b := im.Bounds()
		for y := 0; y < height && y < b.Dy(); y++ {
			for x := 0; x < width && x < b.Dx(); x++ {
				s.slab[(plane*height+y)*width+x] = im.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			}
		}
	}
	s.cachedZ = z
	s.cacheValid = true
	return nil
}
