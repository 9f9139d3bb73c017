// Package source reads an on-disk stack of single-slice images into the
// ImageSource abstraction other packages build stacks and volumes from.
// Grounded on bbic/image_stack.py's ImageStack.
package source

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
)

// ImageSource is the abstraction a TilePyramidBuilder or VolumeBuilder reads
// 2D slices from, grounded on bbic/image_provider.py's ImageProvider.
type ImageSource interface {
	// Dimensions returns (width, height, num_slices). Width/height are
	// zero until DetermineSize has run.
	Dimensions() (width, height, numSlices int)
	// Image returns slice index, padded to the source's width/height with
	// padding as its border fill value.
	Image(index int, padding uint8) (*image.Gray, error)
}

// FileStack is an ImageSource backed by files on disk, named either by a
// printf-style pattern ("slice_%04d.png") or a text file listing one image
// path per line, exactly per image_stack.py's _get_filenames.
type FileStack struct {
	filenames     []string
	width, height int
}

// NewFileStack resolves pattern into a concrete, ordered file list.
//
// If pattern contains '%', it is treated as a fmt.Sprintf verb applied to an
// increasing slice index; the start index is 0 unless only pattern%1 exists,
// in which case indices start at 1 (mirrors image_stack.py's 0-or-1-based
// probing). Otherwise pattern is read as a newline-separated list of image
// paths, blank lines skipped.
func NewFileStack(pattern string) (*FileStack, error) {
	var filenames []string
	if strings.Contains(pattern, "%") {
		filenames = expandPattern(pattern)
	} else {
		var err error
		filenames, err = readFileList(pattern)
		if err != nil {
			return nil, err
		}
	}
	return &FileStack{filenames: filenames}, nil
}

func expandPattern(pattern string) []string {
	start := 0
	if _, err := os.Stat(fmt.Sprintf(pattern, 0)); err != nil {
		start = 1
	}
	var filenames []string
	for idx := start; ; idx++ {
		name := fmt.Sprintf(pattern, idx)
		if _, err := os.Stat(name); err != nil {
			break
		}
		filenames = append(filenames, name)
	}
	return filenames
}

func readFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bbicerr.Wrap(bbicerr.IOFailure, err, "opening slice list %q", path)
	}
	defer f.Close()

	var filenames []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			filenames = append(filenames, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, bbicerr.Wrap(bbicerr.IOFailure, err, "reading slice list %q", path)
	}
	return filenames, nil
}

// NumSlices returns the number of resolved filenames.
func (s *FileStack) NumSlices() int { return len(s.filenames) }

// Filename returns the path of slice index.
func (s *FileStack) Filename(index int) string { return s.filenames[index] }

func (s *FileStack) Dimensions() (int, int, int) {
	return s.width, s.height, len(s.filenames)
}

// DetermineSize opens this rank's share of the slices (stride comm.Rank()::
// comm.Size()) to find the widest/tallest image, then combines every rank's
// local maximum with AllReduceMax, per image_stack.py's determine_stack_size.
func (s *FileStack) DetermineSize(comm cluster.Comm) error {
	width, height := 0, 0
	for i := comm.Rank(); i < len(s.filenames); i += comm.Size() {
		w, h, err := decodedSize(s.filenames[i])
		if err != nil {
			return err
		}
		if w > width {
			width = w
		}
		if h > height {
			height = h
		}
	}
	s.width = int(comm.AllReduceMax(uint32(width)))
	s.height = int(comm.AllReduceMax(uint32(height)))
	return nil
}

func decodedSize(path string) (int, int, error) {
	im, err := decodeFile(path)
	if err != nil {
		return 0, 0, err
	}
	b := im.Bounds()
	return b.Dx(), b.Dy(), nil
}

// Image opens slice index, converts it to 8-bit luminance, and expands it to
// the stack's width/height, padding around the centred source image with the
// given value, per image_stack.py's get_image/_expand_image.
func (s *FileStack) Image(index int, padding uint8) (*image.Gray, error) {
	im, err := decodeFile(s.filenames[index])
	if err != nil {
		return nil, err
	}
	gray := toGray(im)
	if gray.Bounds().Dx() == s.width && gray.Bounds().Dy() == s.height {
		return gray, nil
	}
	out := codec.NewCanvas(s.width, s.height, padding)
	dx := (s.width - gray.Bounds().Dx()) >> 1
	dy := (s.height - gray.Bounds().Dy()) >> 1
	codec.Paste(out, gray, dx, dy)
	return out, nil
}

func toGray(im image.Image) *image.Gray {
	if g, ok := im.(*image.Gray); ok {
		return g
	}
	b := im.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, color.GrayModel.Convert(im.At(x, y)))
		}
	}
	return out
}

// decodeFile picks the decoder from the file extension (.tif/.tiff, .png,
// .jpg/.jpeg) and falls back to image.Decode's header sniffing for any other
// extension, since an input stack can mix any of the formats the original
// PIL-based reader accepted. This is separate from internal/codec.ImageCodec, which only
// needs to encode/decode the fixed tile format a stack was configured with.
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bbicerr.Wrap(bbicerr.IOFailure, err, "opening slice %q", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		im, err := tiff.Decode(f)
		if err != nil {
			return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "decoding %q", path)
		}
		return im, nil
	case ".png":
		im, err := png.Decode(f)
		if err != nil {
			return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "decoding %q", path)
		}
		return im, nil
	case ".jpg", ".jpeg":
		im, err := jpeg.Decode(f)
		if err != nil {
			return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "decoding %q", path)
		}
		return im, nil
	default:
		im, _, err := image.Decode(f)
		if err != nil {
			return nil, bbicerr.Wrap(bbicerr.CodecFailure, err, "decoding %q", path)
		}
		return im, nil
	}
}
