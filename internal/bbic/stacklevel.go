package bbic

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/block"
	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/store"
)

// StackLevel is a single resolution level of a Stack: a grid of tiles per
// slice. Grounded on bbic/stack.py's StackLevel, which implements both
// BlockProvider and ImageProvider; here those become block.Provider and the
// GetImage method respectively.
type StackLevel struct {
	store store.GroupStore
	path  string
	codec codec.ImageCodec

	Index     int
	TileSize  int
	NumXTiles int
	NumYTiles int
	NumSlices int
	Width     int
	Height    int
}

func (l *StackLevel) String() string {
	return fmt.Sprintf("StackLevel%d [%d, %d, %d], tile size: %d, #tiles: (%d, %d)",
		l.Index, l.Width, l.Height, l.NumSlices, l.TileSize, l.NumXTiles, l.NumYTiles)
}

func (l *StackLevel) readAttrs() error {
	a, err := l.store.Attrs(l.path)
	if err != nil {
		return err
	}
	nx, err := store.GetUint32(a, "num_x_tiles")
	if err != nil {
		return err
	}
	ny, err := store.GetUint32(a, "num_y_tiles")
	if err != nil {
		return err
	}
	ns, err := store.GetUint32(a, "num_slices")
	if err != nil {
		return err
	}
	l.NumXTiles, l.NumYTiles, l.NumSlices = int(nx), int(ny), int(ns)
	return nil
}

func (l *StackLevel) writeAttrs() error {
	a, err := l.store.Attrs(l.path)
	if err != nil {
		return err
	}
	a.Set("num_x_tiles", uint32(l.NumXTiles))
	a.Set("num_y_tiles", uint32(l.NumYTiles))
	a.Set("num_slices", uint32(l.NumSlices))
	return nil
}

func (l *StackLevel) tilePath(u, v, sliceIndex int) string {
	return fmt.Sprintf("%s/%d/%d/%d", l.path, sliceIndex, u, v)
}

// GetTile reads and decodes the tile at (u, v) of the given slice.
func (l *StackLevel) GetTile(u, v, sliceIndex int) (*image.Gray, error) {
	data, err := l.store.ReadDataset(l.tilePath(u, v, sliceIndex))
	if err != nil {
		return nil, err
	}
	return l.codec.Decode(data)
}

// BlockSize implements block.Provider.
func (l *StackLevel) BlockSize() int { return l.TileSize }

// Dimensions implements block.Provider.
func (l *StackLevel) Dimensions() (int, int, int) { return l.Width, l.Height, l.NumSlices }

// GetBlockCount returns the number of tile-sized blocks along each axis.
func (l *StackLevel) GetBlockCount() (int, int, int) {
	return l.NumXTiles, l.NumYTiles, int(math.Ceil(float64(l.NumSlices) / float64(l.TileSize)))
}

// GetBlock implements block.Provider: it stacks the (u, v) tile of
// TileSize consecutive slices starting at z*TileSize into one DataBlock.
func (l *StackLevel) GetBlock(u, v, z int) (*block.Block, error) {
	sliceStart := z * l.TileSize
	sliceEnd := sliceStart + l.TileSize
	if sliceEnd > l.NumSlices {
		sliceEnd = l.NumSlices
	}
	depth := sliceEnd - sliceStart
	if depth <= 0 {
		return nil, bbicerr.New(bbicerr.OutOfRange, "block z=%d is beyond the %d slices of this level", z, l.NumSlices)
	}

	b := block.New(u, v, z, l.TileSize)
	for slice := sliceStart; slice < sliceEnd; slice++ {
		im, err := l.GetTile(u, v, slice)
		if err != nil {
			return nil, err
		}
		bounds := im.Bounds()
		if !b.IsValid() {
			b.Allocate(bounds.Dx(), bounds.Dy(), depth)
		}
		plane := slice - sliceStart
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				b.Set(x, y, plane, im.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	}
	return b, nil
}

// GetImage stitches every tile of the given slice into one raster, padded
// with padding where tiles are short of a full tile_size (border tiles).
func (l *StackLevel) GetImage(sliceIndex int, padding uint8) (*image.Gray, error) {
	tiles := make([][]*image.Gray, l.NumYTiles)
	width, height := 0, 0
	for v := 0; v < l.NumYTiles; v++ {
		tiles[v] = make([]*image.Gray, l.NumXTiles)
		var lastHeight int
		for u := 0; u < l.NumXTiles; u++ {
			tile, err := l.GetTile(u, v, sliceIndex)
			if err != nil {
				return nil, err
			}
			tiles[v][u] = tile
			if v == 0 {
				width += tile.Bounds().Dx()
			}
			lastHeight = tile.Bounds().Dy()
		}
		height += lastHeight
	}

	out := codec.NewCanvas(width, height, padding)
	for v := 0; v < l.NumYTiles; v++ {
		for u := 0; u < l.NumXTiles; u++ {
			codec.Paste(out, tiles[v][u], u*l.TileSize, v*l.TileSize)
		}
	}
	return out, nil
}

// AllocateTile pre-allocates the dataset backing the given tile, per the
// pre-allocation protocol of spec.md §5.
func (l *StackLevel) AllocateTile(size, u, v, sliceIndex int) error {
	return l.store.CreateDataset(l.tilePath(u, v, sliceIndex), size)
}

// StoreTile writes encoded tile bytes, creating the dataset first if
// AllocateTile was never called for it.
func (l *StackLevel) StoreTile(data []byte, u, v, sliceIndex int) error {
	path := l.tilePath(u, v, sliceIndex)
	if !l.store.Has(path) {
		if err := l.store.CreateDataset(path, len(data)); err != nil {
			return err
		}
	}
	return l.store.WriteDataset(path, data)
}

// ExtractSlices writes every slice of this level to outputDir as individual
// image files, one per slice index, in the given format.
func (l *StackLevel) ExtractSlices(outputDir string, format codec.Format) error {
	c, err := codec.NewCodec(format)
	if err != nil {
		return err
	}
	ext := formatExtension(format)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "creating output directory %q", outputDir)
	}
	for i := 0; i < l.NumSlices; i++ {
		im, err := l.GetImage(i, 0)
		if err != nil {
			return err
		}
		data, err := c.Encode(im)
		if err != nil {
			return bbicerr.Wrap(bbicerr.CodecFailure, err, "encoding slice %d", i)
		}
		path := filepath.Join(outputDir, fmt.Sprintf("%d.%s", i, ext))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return bbicerr.Wrap(bbicerr.IOFailure, err, "writing slice %d", i)
		}
	}
	return nil
}

func formatExtension(f codec.Format) string {
	switch f {
	case codec.JPEG:
		return "jpg"
	case codec.PNG:
		return "png"
	case codec.TIFF:
		return "tiff"
	default:
		return "bin"
	}
}
