package codec

import (
	"image"
	"image/color"
	"image/draw"
)

// Interp selects the interpolation method used by Resize.
type Interp int

const (
	Nearest Interp = iota
	Linear
)

// ParseInterp converts a CLI-facing interpolation name to an Interp.
func ParseInterp(s string) (Interp, error) {
	switch s {
	case "nearest":
		return Nearest, nil
	case "linear":
		return Linear, nil
	default:
		return 0, errUnsupportedInterp(s)
	}
}

func errUnsupportedInterp(s string) error {
	return &unsupportedInterpError{s}
}

type unsupportedInterpError struct{ s string }

func (e *unsupportedInterpError) Error() string {
	return "unknown interpolation method " + e.s + " (supported: nearest, linear)"
}

// toGray converts any image.Image to *image.Gray, taking the fast path when
// the source is already gray (mirrors the teacher's diskstore.go fast-path
// for *image.RGBA / *image.Gray).
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}

// NewCanvas allocates a w×h gray raster filled with the given padding value.
func NewCanvas(w, h int, padding uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	if padding != 0 {
		for i := range g.Pix {
			g.Pix[i] = padding
		}
	}
	return g
}

// Crop extracts the sub-rectangle [x, x+w) x [y, y+h) from src, clamping at
// the source bounds (the result may be narrower/shorter than w x h — used for
// border tiles per spec.md §3's tile-grid edge-clipping rule).
func Crop(src *image.Gray, x, y, w, h int) *image.Gray {
	b := src.Bounds()
	w1 := w
	if x+w1 > b.Dx() {
		w1 = b.Dx() - x
	}
	h1 := h
	if y+h1 > b.Dy() {
		h1 = b.Dy() - y
	}
	if w1 < 0 {
		w1 = 0
	}
	if h1 < 0 {
		h1 = 0
	}
	out := image.NewGray(image.Rect(0, 0, w1, h1))
	draw.Draw(out, out.Bounds(), src, image.Pt(b.Min.X+x, b.Min.Y+y), draw.Src)
	return out
}

// Paste copies src into dst with its top-left corner at (x, y).
func Paste(dst *image.Gray, src *image.Gray, x, y int) {
	r := image.Rect(x, y, x+src.Bounds().Dx(), y+src.Bounds().Dy())
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Src)
}

// Expand returns src centred on a w x h canvas filled with padding, matching
// image_stack.py's _expand_image centred-paste behaviour.
func Expand(src *image.Gray, w, h int, padding uint8) *image.Gray {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	out := NewCanvas(w, h, padding)
	dx := (w - b.Dx()) >> 1
	dy := (h - b.Dy()) >> 1
	Paste(out, src, dx, dy)
	return out
}

// Resize scales src to exactly w x h using the given interpolation method.
// Per spec.md §9's "integer shifts producing zero" note, a w or h below 1
// is clamped to 1.
func Resize(src *image.Gray, w, h int, interp Interp) *image.Gray {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if sw == 0 || sh == 0 {
		return out
	}

	switch interp {
	case Nearest:
		for y := 0; y < h; y++ {
			sy := y * sh / h
			for x := 0; x < w; x++ {
				sx := x * sw / w
				out.SetGray(x, y, src.GrayAt(sb.Min.X+sx, sb.Min.Y+sy))
			}
		}
	default: // Linear
		for y := 0; y < h; y++ {
			fy := (float64(y)+0.5)*float64(sh)/float64(h) - 0.5
			y0 := clampInt(int(fy), 0, sh-1)
			y1 := clampInt(y0+1, 0, sh-1)
			ty := fy - float64(y0)
			if ty < 0 {
				ty = 0
			}
			for x := 0; x < w; x++ {
				fx := (float64(x)+0.5)*float64(sw)/float64(w) - 0.5
				x0 := clampInt(int(fx), 0, sw-1)
				x1 := clampInt(x0+1, 0, sw-1)
				tx := fx - float64(x0)
				if tx < 0 {
					tx = 0
				}
				v00 := float64(src.GrayAt(sb.Min.X+x0, sb.Min.Y+y0).Y)
				v10 := float64(src.GrayAt(sb.Min.X+x1, sb.Min.Y+y0).Y)
				v01 := float64(src.GrayAt(sb.Min.X+x0, sb.Min.Y+y1).Y)
				v11 := float64(src.GrayAt(sb.Min.X+x1, sb.Min.Y+y1).Y)
				v0 := v00*(1-tx) + v10*tx
				v1 := v01*(1-tx) + v11*tx
				v := v0*(1-ty) + v1*ty
				out.SetGray(x, y, color.Gray{Y: clampByte(v)})
			}
		}
	}
	return out
}

// HalveDims applies the "integer shift producing zero clamps to 1" rule of
// spec.md §9 when computing a level's dimensions for resampling.
func HalveDims(w, h int) (int, int) {
	nw, nh := w>>1, h>>1
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
