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

// Volume version constants, grounded on volume.py's VOLUME_VERSION_* module
// constants. VolumeVersionOriginal's legacy LODs lack width/height/depth
// attributes and derive them from num_blocks*block_size on read (see
// VolumeLOD.readAttrs); VolumeVersionCurrent always writes them.
const (
	VolumeVersionUnknown  uint32 = 0
	VolumeVersionOriginal uint32 = 1
	VolumeVersionCurrent  uint32 = 2
)

// Volume is a 3D block stored as a multi-resolution octree of cubic blocks,
// grounded on bbic/volume.py's Volume class.
type Volume struct {
	store store.GroupStore
	path  string

	Index       int
	Width       int
	Height      int
	Depth       int
	BlockSize   int
	Orientation string
	Version     uint32
}

func (v *Volume) String() string {
	nx, ny, nz := v.BlockCount(0)
	return fmt.Sprintf("Volume v%d [%d, %d, %d], block size: %d, #blocks (%d, %d, %d)",
		v.Version, v.Width, v.Height, v.Depth, v.BlockSize, nx, ny, nz)
}

func (v *Volume) readAttrs() error {
	a, err := v.store.Attrs(v.path)
	if err != nil {
		return err
	}
	width, err := store.GetUint32(a, "width")
	if err != nil {
		return err
	}
	height, err := store.GetUint32(a, "height")
	if err != nil {
		return err
	}
	depth, err := store.GetUint32(a, "num_slices")
	if err != nil {
		return err
	}
	blockSize, err := store.GetUint32(a, "tile_size")
	if err != nil {
		return err
	}
	v.Width, v.Height, v.Depth, v.BlockSize = int(width), int(height), int(depth), int(blockSize)
	v.Orientation = store.GetStringOr(a, "orientation", "")
	v.Version = store.GetUint32Or(a, "version", VolumeVersionUnknown)
	return nil
}

func (v *Volume) writeAttrs() error {
	a, err := v.store.Attrs(v.path)
	if err != nil {
		return err
	}
	a.Set("width", uint32(v.Width))
	a.Set("height", uint32(v.Height))
	a.Set("num_slices", uint32(v.Depth))
	a.Set("tile_size", uint32(v.BlockSize))
	a.Set("orientation", v.Orientation)
	a.Set("version", v.Version)
	return nil
}

// LODCount returns the number of LODs this volume should have: levels are
// generated until the smallest block-count axis, multiplied by block size,
// reaches a single pixel (bbic/volume.py: get_lod_count).
func (v *Volume) LODCount() int {
	nx, ny, nz := v.BlockCount(0)
	m := minInt(nx, minInt(ny, nz)) * v.BlockSize
	return int(math.Floor(math.Log2(float64(m)))) + 1
}

// Dimensions returns the volume's size at the given LOD (each LOD halves
// every axis).
func (v *Volume) Dimensions(level int) (int, int, int) {
	return v.Width >> level, v.Height >> level, v.Depth >> level
}

// BlockCount returns the number of blocks per axis at the given LOD.
func (v *Volume) BlockCount(level int) (int, int, int) {
	w, h, d := v.Dimensions(level)
	ceilDiv := func(a, b int) int { return (a + b - 1) / b }
	return ceilDiv(w, v.BlockSize), ceilDiv(h, v.BlockSize), ceilDiv(d, v.BlockSize)
}

func (v *Volume) lodPath(level int) string {
	return fmt.Sprintf("%s/levels/%d", v.path, level)
}

// CreateLOD creates (and optionally pre-allocates every block dataset of)
// the LOD at the given index, grounded on Volume._create_lod.
func (v *Volume) CreateLOD(level int, preAllocate bool) (*VolumeLOD, error) {
	path := v.lodPath(level)
	if err := v.store.CreateGroup(path); err != nil {
		return nil, err
	}
	w, h, d := v.Dimensions(level)
	nx, ny, nz := v.BlockCount(level)
	lod := &VolumeLOD{store: v.store, path: path, Level: level, Side: v.BlockSize,
		Width: w, Height: h, Depth: d, NumBlocksX: nx, NumBlocksY: ny, NumBlocksZ: nz}
	if err := lod.writeAttrs(); err != nil {
		return nil, err
	}
	if preAllocate {
		if err := lod.AllocateAllBlocks(); err != nil {
			return nil, err
		}
	}
	return lod, nil
}

// GetLOD opens an existing LOD, or returns MissingEntity if it has not been
// created yet.
func (v *Volume) GetLOD(level int) (*VolumeLOD, error) {
	path := v.lodPath(level)
	if !v.store.Has(path) {
		return nil, bbicerr.New(bbicerr.MissingEntity, "volume %d has no LOD %d", v.Index, level)
	}
	lod := &VolumeLOD{store: v.store, path: path, Level: level, Side: v.BlockSize}
	if err := lod.readAttrs(); err != nil {
		return nil, err
	}
	if v.Version < VolumeVersionOriginal {
		// Legacy containers never wrote LOD dimensions at all (not just a
		// placeholder): recompute them from the volume's own dimensions,
		// per Volume.get_lod's compatibility branch.
		lod.Width, lod.Height, lod.Depth = v.Dimensions(level)
		lod.NumBlocksX, lod.NumBlocksY, lod.NumBlocksZ = v.BlockCount(level)
	}
	return lod, nil
}

// SetDimensionsFromSource records this volume's size and block size ahead
// of filling it from a block.Provider, and persists the root attrs.
func (v *Volume) SetDimensionsFromSource(source block.Provider, blockSize int) error {
	v.Width, v.Height, v.Depth = source.Dimensions()
	v.BlockSize = blockSize
	if v.Version == VolumeVersionUnknown {
		v.Version = VolumeVersionCurrent
	}
	return v.writeAttrs()
}

// VolumeLOD is a single resolution level of a Volume's block octree,
// grounded on bbic/volume.py's VolumeLOD class. It implements
// block.Provider so it can be both filled from, and used as the source of,
// a downsampling pass.
type VolumeLOD struct {
	store store.GroupStore
	path  string

	Level      int
	Side       int
	NumBlocksX int
	NumBlocksY int
	NumBlocksZ int
	Width      int
	Height     int
	Depth      int
}

func (l *VolumeLOD) String() string {
	return fmt.Sprintf("VolumeLOD %d [%d, %d, %d], block size: %d, #blocks (%d, %d, %d)",
		l.Level, l.Width, l.Height, l.Depth, l.Side, l.NumBlocksX, l.NumBlocksY, l.NumBlocksZ)
}

func (l *VolumeLOD) readAttrs() error {
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
	nz, err := store.GetUint32(a, "num_z_tiles")
	if err != nil {
		return err
	}
	l.NumBlocksX, l.NumBlocksY, l.NumBlocksZ = int(nx), int(ny), int(nz)
	l.Width = int(store.GetUint32Or(a, "width", uint32(l.NumBlocksX*l.Side)))
	l.Height = int(store.GetUint32Or(a, "height", uint32(l.NumBlocksY*l.Side)))
	l.Depth = int(store.GetUint32Or(a, "depth", uint32(l.NumBlocksZ*l.Side)))
	return nil
}

func (l *VolumeLOD) writeAttrs() error {
	a, err := l.store.Attrs(l.path)
	if err != nil {
		return err
	}
	a.Set("num_x_tiles", uint32(l.NumBlocksX))
	a.Set("num_y_tiles", uint32(l.NumBlocksY))
	a.Set("num_z_tiles", uint32(l.NumBlocksZ))
	a.Set("width", uint32(l.Width))
	a.Set("height", uint32(l.Height))
	a.Set("depth", uint32(l.Depth))
	return nil
}

func (l *VolumeLOD) blockPath(u, v, z int) string {
	return fmt.Sprintf("%s/%d/%d/%d", l.path, u, v, z)
}

func (l *VolumeLOD) validIndices(u, v, z int) bool {
	return u >= 0 && u < l.NumBlocksX && v >= 0 && v < l.NumBlocksY && z >= 0 && z < l.NumBlocksZ
}

// blockDims returns the valid (possibly clipped, for border blocks)
// dimensions of the block at (x, y, z), per VolumeLOD._get_block_size.
func (l *VolumeLOD) blockDims(x, y, z int) (int, int, int) {
	if x < 0 || x > l.NumBlocksX || y < 0 || y > l.NumBlocksY || z < 0 || z > l.NumBlocksZ {
		return 0, 0, 0
	}
	padW, padH, padD := l.Width%l.Side, l.Height%l.Side, l.Depth%l.Side
	w := l.Side
	if x == l.NumBlocksX-1 && padW > 0 {
		w = padW
	}
	h := l.Side
	if y == l.NumBlocksY-1 && padH > 0 {
		h = padH
	}
	d := l.Side
	if z == l.NumBlocksZ-1 && padD > 0 {
		d = padD
	}
	return w, h, d
}

// BlockSize implements block.Provider.
func (l *VolumeLOD) BlockSize() int { return l.Side }

// Dimensions implements block.Provider.
func (l *VolumeLOD) Dimensions() (int, int, int) { return l.Width, l.Height, l.Depth }

// AllocateAllBlocks pre-creates the dataset for every block in this LOD.
func (l *VolumeLOD) AllocateAllBlocks() error {
	n := l.Side * l.Side * l.Side
	for z := 0; z < l.NumBlocksZ; z++ {
		for v := 0; v < l.NumBlocksY; v++ {
			for u := 0; u < l.NumBlocksX; u++ {
				if err := l.store.CreateDataset(l.blockPath(u, v, z), n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// GetBlock implements block.Provider. Reads the full block_size^3 dataset
// (allocating it first if AllocateAllBlocks was never called) and trims it
// to this block's valid (possibly-clipped) dimensions.
func (l *VolumeLOD) GetBlock(u, v, z int) (*block.Block, error) {
	if !l.validIndices(u, v, z) {
		return nil, bbicerr.New(bbicerr.OutOfRange, "block (%d,%d,%d) outside LOD %d grid (%d,%d,%d)",
			u, v, z, l.Level, l.NumBlocksX, l.NumBlocksY, l.NumBlocksZ)
	}
	path := l.blockPath(u, v, z)
	if !l.store.Has(path) {
		if err := l.store.CreateDataset(path, l.Side*l.Side*l.Side); err != nil {
			return nil, err
		}
	}
	raw, err := l.store.ReadDataset(path)
	if err != nil {
		return nil, err
	}
	w, h, d := l.blockDims(u, v, z)
	b := block.New(u, v, z, l.Side)
	b.Allocate(w, h, d)
	for zz := 0; zz < d; zz++ {
		for yy := 0; yy < h; yy++ {
			for xx := 0; xx < w; xx++ {
				b.Set(xx, yy, zz, raw[(zz*l.Side+yy)*l.Side+xx])
			}
		}
	}
	return b, nil
}

// PutBlock writes b back to its dataset, padding to the full block_size^3
// cube with zero bytes beyond b's valid region.
func (l *VolumeLOD) PutBlock(b *block.Block) error {
	path := l.blockPath(b.U, b.V, b.Z)
	n := l.Side * l.Side * l.Side
	raw := make([]byte, n)
	for zz := 0; zz < b.Depth; zz++ {
		for yy := 0; yy < b.Height; yy++ {
			for xx := 0; xx < b.Width; xx++ {
				raw[(zz*l.Side+yy)*l.Side+xx] = b.At(xx, yy, zz)
			}
		}
	}
	if !l.store.Has(path) {
		if err := l.store.CreateDataset(path, n); err != nil {
			return err
		}
	}
	return l.store.WriteDataset(path, raw)
}

// axisIndices returns (outer, inner1, inner2), the positions within a
// (depth, height, width)-ordered triple that a slice along the given axis
// is read outer-to-inner, per volume.py's get_indices: axis 0 slices along
// depth (an axial stack of height x width images), axis 1 along height
// (depth x width images), axis 2 along width (depth x height images).
func axisIndices(axis int) (outer, inner1, inner2 int, err error) {
	switch axis {
	case 0:
		return 0, 1, 2, nil
	case 1:
		return 1, 0, 2, nil
	case 2:
		return 2, 0, 1, nil
	default:
		return 0, 0, 0, bbicerr.New(bbicerr.InvalidArgument, "invalid axis %d (want 0, 1 or 2)", axis)
	}
}

// ExtractSlices writes this LOD to outputDir as a stack of 2D images, one
// per position along axis (0=depth, 1=height, 2=width), grounded on
// bbic/volume.py's VolumeLOD.extract_slices. Blocks are read one (outer,
// inner1, inner2) triple at a time and reused for every one of the up-to
// block-size slices they cover, rather than refetched per slice.
func (l *VolumeLOD) ExtractSlices(outputDir string, format codec.Format, axis int) error {
	outerDim, inner1Dim, inner2Dim, err := axisIndices(axis)
	if err != nil {
		return err
	}
	dim := [3]int{l.Depth, l.Height, l.Width}
	numBlocks := [3]int{l.NumBlocksZ, l.NumBlocksY, l.NumBlocksX}

	c, err := codec.NewCodec(format)
	if err != nil {
		return err
	}
	ext := formatExtension(format)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return bbicerr.Wrap(bbicerr.IOFailure, err, "creating output directory %q", outputDir)
	}

	innerSize1 := numBlocks[inner1Dim] * l.Side
	innerSize2 := numBlocks[inner2Dim] * l.Side
	cropInner1, cropInner2 := dim[inner1Dim], dim[inner2Dim]

	for outerBlock := 0; outerBlock < numBlocks[outerDim]; outerBlock++ {
		depth := minInt(l.Side, dim[outerDim]-outerBlock*l.Side)
		if depth <= 0 {
			break
		}
		planes := make([][]uint8, depth)
		for n := range planes {
			planes[n] = make([]uint8, innerSize1*innerSize2)
		}

		for i1 := 0; i1 < numBlocks[inner1Dim]; i1++ {
			for i2 := 0; i2 < numBlocks[inner2Dim]; i2++ {
				var idx [3]int
				idx[outerDim] = outerBlock
				idx[inner1Dim] = i1
				idx[inner2Dim] = i2
				b, err := l.GetBlock(idx[2], idx[1], idx[0])
				if err != nil {
					return err
				}
				bdim := [3]int{b.Depth, b.Height, b.Width}
				for n := 0; n < depth && n < bdim[outerDim]; n++ {
					for p1 := 0; p1 < bdim[inner1Dim]; p1++ {
						for p2 := 0; p2 < bdim[inner2Dim]; p2++ {
							var voxel [3]int
							voxel[outerDim] = n
							voxel[inner1Dim] = p1
							voxel[inner2Dim] = p2
							val := b.At(voxel[2], voxel[1], voxel[0])
							row := i1*l.Side + p1
							col := i2*l.Side + p2
							planes[n][row*innerSize2+col] = val
						}
					}
				}
			}
		}

		for n := 0; n < depth; n++ {
			im := &image.Gray{Pix: planes[n], Stride: innerSize2, Rect: image.Rect(0, 0, innerSize2, innerSize1)}
			if cropInner2 < innerSize2 || cropInner1 < innerSize1 {
				im = im.SubImage(image.Rect(0, 0, cropInner2, cropInner1)).(*image.Gray)
			}
			data, err := c.Encode(im)
			if err != nil {
				return bbicerr.Wrap(bbicerr.CodecFailure, err, "encoding slice %d", outerBlock*l.Side+n)
			}
			sliceIndex := outerBlock*l.Side + n
			path := filepath.Join(outputDir, fmt.Sprintf("%d.%s", sliceIndex, ext))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return bbicerr.Wrap(bbicerr.IOFailure, err, "writing slice %d", sliceIndex)
			}
		}
	}
	return nil
}
