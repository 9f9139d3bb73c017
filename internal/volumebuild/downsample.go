package volumebuild

import (
	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/block"
)

// Downsampler wraps one VolumeLOD as a half-resolution block.Provider: each
// of its blocks is a 2x2x2 neighbourhood of the wrapped LOD's blocks,
// median-filtered and decimated by two. Grounded on bbic/volume.py's
// VolumeLODDownsampler.
type Downsampler struct {
	lod *bbic.VolumeLOD
}

// NewDownsampler wraps lod for use as the source of the LOD one level
// coarser than it.
func NewDownsampler(lod *bbic.VolumeLOD) *Downsampler {
	return &Downsampler{lod: lod}
}

// BlockSize implements block.Provider: the downsampled blocks keep the same
// nominal side as the LOD they are built from.
func (d *Downsampler) BlockSize() int { return d.lod.BlockSize() }

// Dimensions implements block.Provider.
func (d *Downsampler) Dimensions() (int, int, int) {
	w, h, dep := d.lod.Dimensions()
	return w >> 1, h >> 1, dep >> 1
}

// metaBlockDims returns the valid size of the 2x2x2 neighbourhood of source
// blocks at (u, v, z), clipped at the wrapped LOD's own border.
func (d *Downsampler) metaBlockDims(u, v, z int) (int, int, int) {
	metaSide := 2 * d.lod.BlockSize()
	w, h, dep := d.lod.Dimensions()
	return clampNonNeg(minInt(metaSide, w-u*metaSide)),
		clampNonNeg(minInt(metaSide, h-v*metaSide)),
		clampNonNeg(minInt(metaSide, dep-z*metaSide))
}

// GetBlock implements block.Provider: assembles the 2x2x2 neighbourhood of
// the wrapped LOD's blocks around (u, v, z), then median-filters and
// decimates it by two.
func (d *Downsampler) GetBlock(u, v, z int) (*block.Block, error) {
	metaSide := 2 * d.lod.BlockSize()
	w, h, dep := d.metaBlockDims(u, v, z)

	meta := block.New(u, v, z, metaSide)
	meta.AllocateAndSet(w, h, dep, 0)
	if err := meta.Fill(d.lod, 2*u, 2*v, 2*z); err != nil {
		return nil, err
	}
	return downsample(meta), nil
}

// downsample returns a copy of meta, median-filtered and decimated by two
// using nearest-neighbour sampling (no pre-filter), matching
// scipy.ndimage.interpolation.zoom(..., 0.5, order=0, prefilter=False).
func downsample(meta *block.Block) *block.Block {
	filtered := medianFilter3(meta)
	side := meta.Nominal >> 1
	ow, oh, od := ceilHalf(meta.Width), ceilHalf(meta.Height), ceilHalf(meta.Depth)

	out := block.New(meta.U, meta.V, meta.Z, side)
	out.Allocate(ow, oh, od)
	for z := 0; z < od; z++ {
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				out.Set(x, y, z, filtered.At(2*x, 2*y, 2*z))
			}
		}
	}
	return out
}

// medianFilter3 applies a 2x2x2-window median filter over b's valid region,
// clamping the window at the far edge (replicating the boundary voxel)
// rather than reading beyond b's allocated bounds — the shape of
// scipy.ndimage.filters.median_filter's default, even-sized footprint.
func medianFilter3(b *block.Block) *block.Block {
	out := block.New(b.U, b.V, b.Z, b.Nominal)
	out.Allocate(b.Width, b.Height, b.Depth)

	var window [8]uint8
	for z := 0; z < b.Depth; z++ {
		z1 := clampMax(z+1, b.Depth-1)
		for y := 0; y < b.Height; y++ {
			y1 := clampMax(y+1, b.Height-1)
			for x := 0; x < b.Width; x++ {
				x1 := clampMax(x+1, b.Width-1)
				window[0] = b.At(x, y, z)
				window[1] = b.At(x1, y, z)
				window[2] = b.At(x, y1, z)
				window[3] = b.At(x1, y1, z)
				window[4] = b.At(x, y, z1)
				window[5] = b.At(x1, y, z1)
				window[6] = b.At(x, y1, z1)
				window[7] = b.At(x1, y1, z1)
				out.Set(x, y, z, median8(window))
			}
		}
	}
	return out
}

// median8 returns the upper-median of 8 values via insertion sort, cheap
// enough at this fixed size to not warrant sort.Slice.
func median8(w [8]uint8) uint8 {
	for i := 1; i < len(w); i++ {
		for j := i; j > 0 && w[j-1] > w[j]; j-- {
			w[j-1], w[j] = w[j], w[j-1]
		}
	}
	return w[len(w)/2]
}

func ceilHalf(a int) int { return (a + 1) / 2 }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampMax(v, max int) int {
	if v > max {
		return max
	}
	return v
}

func clampNonNeg(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
