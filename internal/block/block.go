// Package block implements the DataBlock algebra of spec.md §4.1: an
// in-memory cubic uint8 array plus logical grid position, and the operations
// (Allocate, Split, Copy, Fill, ToXTiles, ToYTiles) that the tile pyramid
// builder and volume pyramid builder are built from.
//
// Grounded on services/bbic_stack/bbic/data_block.py of the original
// implementation, translated from numpy's [depth][height][width] axis order
// to a flat []uint8 with the same index arithmetic the teacher's
// internal/tile/downsample.go uses for direct pixel-slice manipulation.
package block

import (
	"image"
	"image/color"

	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/codec"
)

// Provider is the BlockProvider interface of spec.md §6: a source of cubic
// blocks addressed by grid position.
type Provider interface {
	BlockSize() int
	Dimensions() (w, h, d int)
	GetBlock(u, v, z int) (*Block, error)
}

// Block is a DataBlock: an in-memory [depth][height][width] uint8 volume
// plus its logical grid position (u, v, z), its nominal cube side, and its
// currently-valid (width, height, depth) — which may be smaller than the
// nominal side for border blocks (spec.md §3).
type Block struct {
	U, V, Z     int
	Nominal     int
	Width       int
	Height      int
	Depth       int
	Vol         []uint8 // flat, index = z*Height*Width + y*Width + x
}

// New creates an unallocated block at the given grid position.
func New(u, v, z, nominal int) *Block {
	return &Block{U: u, V: v, Z: z, Nominal: nominal}
}

// IsValid reports whether the block holds volume data.
func (b *Block) IsValid() bool { return b.Vol != nil }

// Allocate materialises storage for a w x h x d block (uninitialised
// content).
func (b *Block) Allocate(w, h, d int) {
	b.Width, b.Height, b.Depth = w, h, d
	b.Vol = make([]uint8, w*h*d)
}

// AllocateAndSet materialises storage filled with a constant value.
func (b *Block) AllocateAndSet(w, h, d int, value uint8) {
	b.Allocate(w, h, d)
	if value != 0 {
		for i := range b.Vol {
			b.Vol[i] = value
		}
	}
}

func (b *Block) idx(x, y, z int) int {
	return z*b.Height*b.Width + y*b.Width + x
}

// At returns the voxel at (x, y, z) in this block's local coordinates.
func (b *Block) At(x, y, z int) uint8 {
	return b.Vol[b.idx(x, y, z)]
}

// Set writes the voxel at (x, y, z).
func (b *Block) Set(x, y, z int, v uint8) {
	b.Vol[b.idx(x, y, z)] = v
}

// Copy pastes other into this block's [0..other.Depth, 0..other.Height,
// 0..other.Width) region. Both blocks must be valid (allocated).
func (b *Block) Copy(other *Block) error {
	if !b.IsValid() || !other.IsValid() {
		return bbicerr.New(bbicerr.InvalidArgument, "Copy requires both blocks to be allocated")
	}
	for z := 0; z < other.Depth; z++ {
		for y := 0; y < other.Height; y++ {
			for x := 0; x < other.Width; x++ {
				b.Set(x, y, z, other.At(x, y, z))
			}
		}
	}
	return nil
}

// subblockCount returns how many subblocks of the given side fit along each
// axis of this block's currently-valid dimensions.
func (b *Block) subblockCount(side int) (nx, ny, nz int) {
	ceilDiv := func(a, b int) int { return (a + b - 1) / b }
	return ceilDiv(b.Width, side), ceilDiv(b.Height, side), ceilDiv(b.Depth, side)
}

// Split divides the block into subblocks of side `subSize`. Fails with
// IncompatibleSize if the nominal size is not a multiple of subSize.
// Subblocks on the far side of the block may be smaller than subSize.
func (b *Block) Split(subSize int) ([]*Block, error) {
	if subSize <= 0 || b.Nominal%subSize != 0 {
		return nil, bbicerr.New(bbicerr.IncompatibleSize, "split %d does not divide nominal size %d", subSize, b.Nominal)
	}
	nx, ny, nz := b.subblockCount(subSize)
	var out []*Block
	for z := 0; z < nz; z++ {
		for v := 0; v < ny; v++ {
			for u := 0; u < nx; u++ {
				sub, err := b.getSubblock(u, v, z, subSize)
				if err != nil {
					return nil, err
				}
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

func (b *Block) getSubblock(u, v, z, subSize int) (*Block, error) {
	sx, sy, sz := u*subSize, v*subSize, z*subSize
	if sx >= b.Width || sy >= b.Height || sz >= b.Depth {
		return nil, bbicerr.New(bbicerr.OutOfRange, "subblock (%d,%d,%d) exceeds block bounds", u, v, z)
	}
	ex := min(sx+subSize, b.Width)
	ey := min(sy+subSize, b.Height)
	ez := min(sz+subSize, b.Depth)
	sub := New(u, v, z, subSize)
	sub.Allocate(ex-sx, ey-sy, ez-sz)
	for zz := 0; zz < sub.Depth; zz++ {
		for yy := 0; yy < sub.Height; yy++ {
			for xx := 0; xx < sub.Width; xx++ {
				sub.Set(xx, yy, zz, b.At(sx+xx, sy+yy, sz+zz))
			}
		}
	}
	return sub, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Fill treats this block as a container of (Nominal/source.BlockSize())^3
// subblocks and copies each one from source, reading from the (uo, vo, zo)
// grid offset. Precondition: source.BlockSize() < b.Nominal and
// b.Nominal % source.BlockSize() == 0.
func (b *Block) Fill(source Provider, uo, vo, zo int) error {
	srcSize := source.BlockSize()
	if srcSize >= b.Nominal {
		return bbicerr.New(bbicerr.IncompatibleSize, "fill source block size %d must be smaller than %d", srcSize, b.Nominal)
	}
	if b.Nominal%srcSize != 0 {
		return bbicerr.New(bbicerr.IncompatibleSize, "fill source block size %d does not divide %d", srcSize, b.Nominal)
	}
	nx, ny, nz := b.subblockCount(srcSize)
	for z := 0; z < nz; z++ {
		for v := 0; v < ny; v++ {
			for u := 0; u < nx; u++ {
				src, err := source.GetBlock(u+uo, v+vo, z+zo)
				if err != nil {
					return err
				}
				sx, sy, sz := u*srcSize, v*srcSize, z*srcSize
				for zz := 0; zz < src.Depth; zz++ {
					for yy := 0; yy < src.Height; yy++ {
						for xx := 0; xx < src.Width; xx++ {
							b.Set(sx+xx, sy+yy, sz+zz, src.At(xx, yy, zz))
						}
					}
				}
			}
		}
	}
	return nil
}

// planeYZAtX returns the Y/Z plane at the given X coordinate, shaped
// [depth rows, height cols] (matches volume[:, :, x] in the numpy original,
// which PIL then reads as an image of size (width=height, height=depth)).
func (b *Block) planeYZAtX(x int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, b.Height, b.Depth))
	for z := 0; z < b.Depth; z++ {
		for y := 0; y < b.Height; y++ {
			g.SetGray(y, z, color.Gray{Y: b.At(x, y, z)})
		}
	}
	return g
}

// planeXZAtY returns the X/Z plane at the given Y coordinate, shaped
// [depth rows, width cols] (matches volume[:, y, :] in the numpy original).
func (b *Block) planeXZAtY(y int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, b.Width, b.Depth))
	for z := 0; z < b.Depth; z++ {
		for x := 0; x < b.Width; x++ {
			g.SetGray(x, z, color.Gray{Y: b.At(x, y, z)})
		}
	}
	return g
}

// ToXTiles produces one compressed tile per x in [0, width), taken as the
// x-th Y/Z plane transformed per the axis reorientation table of spec.md
// §4.1 and compressed with the given codec.
func (b *Block) ToXTiles(c codec.ImageCodec, srcAxis int) ([][]byte, error) {
	out := make([][]byte, b.Width)
	for x := 0; x < b.Width; x++ {
		im := b.planeYZAtX(x)
		var transformed *image.Gray
		switch srcAxis {
		case 0: // X
			transformed = codec.Mirror(codec.Rotate90CCW(im))
		case 1: // Y
			transformed = im
		default: // Z
			transformed = codec.Rotate90CCW(im)
		}
		data, err := c.Encode(transformed)
		if err != nil {
			return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "encoding x-tile %d", x)
		}
		if len(data) == 0 {
			return nil, bbicerr.New(bbicerr.CodecFailure, "encoder produced zero bytes for x-tile %d", x)
		}
		out[x] = data
	}
	return out, nil
}

// ToYTiles produces one compressed tile per y in [0, height), taken as the
// y-th X/Z plane transformed per the axis reorientation table of spec.md
// §4.1 and compressed with the given codec.
func (b *Block) ToYTiles(c codec.ImageCodec, srcAxis int) ([][]byte, error) {
	out := make([][]byte, b.Height)
	for y := 0; y < b.Height; y++ {
		im := b.planeXZAtY(y)
		var transformed *image.Gray
		switch srcAxis {
		case 0: // X
			transformed = codec.Flip(codec.Rotate90CW(im))
		case 1: // Y
			transformed = im
		default: // Z
			transformed = codec.Flip(im)
		}
		data, err := c.Encode(transformed)
		if err != nil {
			return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "encoding y-tile %d", y)
		}
		if len(data) == 0 {
			return nil, bbicerr.New(bbicerr.CodecFailure, "encoder produced zero bytes for y-tile %d", y)
		}
		out[y] = data
	}
	return out, nil
}
