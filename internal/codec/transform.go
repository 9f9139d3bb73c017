package codec

import "image"

// Rotate90CCW rotates src by -90 degrees (counter-clockwise), matching
// PIL's Image.rotate(-90) convention used throughout the original bbic
// sources (DataBlock.to_x_tiles/to_y_tiles).
func Rotate90CCW(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// (x, y) -> (y, w-1-x)
			out.SetGray(y, w-1-x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Rotate90CW rotates src by +90 degrees (clockwise).
func Rotate90CW(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// (x, y) -> (h-1-y, x)
			out.SetGray(h-1-y, x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Mirror flips src horizontally (left-right), matching PIL's ImageOps.mirror.
func Mirror(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(w-1-x, y, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Flip flips src vertically (top-bottom), matching PIL's ImageOps.flip.
func Flip(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(x, h-1-y, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
