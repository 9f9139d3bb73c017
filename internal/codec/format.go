// Package codec implements the ImageCodec abstraction: encode/decode of 8-bit
// luminance rasters in JPEG, PNG and TIFF, plus the narrow set of raster
// operations the pyramid builder needs (crop, paste, resize, rotate by ±90°,
// mirror, flip).
//
// Modeled on the teacher's internal/encode package (one small file per
// format, a registry function picking the concrete Encoder/Decoder), widened
// from RGBA tiles to single-channel luminance rasters per the spec's
// 8-bit-grayscale Non-goal.
package codec

import (
	"fmt"
	"image"
	"strings"
)

// Format identifies a supported tile image format.
type Format int

const (
	JPEG Format = iota
	PNG
	TIFF
)

// ParseFormat converts a case-insensitive format name (as used by the CLI and
// the on-disk "type" attribute, e.g. "image/jpeg") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "image/jpeg":
		return JPEG, nil
	case "png", "image/png":
		return PNG, nil
	case "tiff", "image/tiff":
		return TIFF, nil
	default:
		return 0, fmt.Errorf("unsupported tile format: %q (supported: JPEG, PNG, TIFF)", s)
	}
}

func (f Format) String() string {
	switch f {
	case JPEG:
		return "JPEG"
	case PNG:
		return "PNG"
	case TIFF:
		return "TIFF"
	default:
		return "UNKNOWN"
	}
}

// MIME returns the on-disk "type" attribute value, e.g. "image/jpeg".
func (f Format) MIME() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case TIFF:
		return "image/tiff"
	default:
		return "image/unknown"
	}
}

// ImageCodec encodes and decodes 8-bit luminance rasters.
type ImageCodec interface {
	Encode(r *image.Gray) ([]byte, error)
	Decode(data []byte) (*image.Gray, error)
	Format() Format
}

// NewCodec returns the ImageCodec for the given format.
func NewCodec(f Format) (ImageCodec, error) {
	switch f {
	case JPEG:
		return &jpegCodec{Quality: 90}, nil
	case PNG:
		return &pngCodec{}, nil
	case TIFF:
		return &tiffCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported tile format: %v", f)
	}
}
